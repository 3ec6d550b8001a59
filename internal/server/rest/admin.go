package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/gin-gonic/gin"
)

// localFieldsRequest is the body of both admin writes. Absent fields are
// left unchanged.
type localFieldsRequest struct {
	RegistryMeta models.Meta        `json:"registryMeta"`
	Visibility   *models.Visibility `json:"visibility" binding:"omitempty,oneof=draft published"`
}

type syncResponse struct {
	Status    models.RunStatus `json:"status"`
	RunID     int64            `json:"runId,omitempty"`
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	SyncedAt  time.Time        `json:"syncedAt"`
	Error     string           `json:"error,omitempty"`
}

type runResponse struct {
	ID               int64            `json:"id"`
	Source           string           `json:"source"`
	Status           models.RunStatus `json:"status"`
	RecordsProcessed int              `json:"recordsProcessed"`
	RecordsSkipped   int              `json:"recordsSkipped"`
	Error            *string          `json:"error,omitempty"`
	SyncedAt         time.Time        `json:"syncedAt"`
}

type packageResponse struct {
	Name         string            `json:"name"`
	RegistryMeta models.Meta       `json:"registryMeta"`
	Visibility   models.Visibility `json:"visibility"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func bindLocalFields(c *gin.Context) (*localFieldsRequest, error) {
	var req localFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidArgument, err.Error())
	}
	return &req, nil
}

// triggerSync runs a sync synchronously. An executed run answers 200 even
// when it failed; the body carries the outcome.
func (h *handlers) triggerSync(c *gin.Context) {
	res, err := h.Sync.Run(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResponse{
		Status:    res.Status,
		RunID:     res.RunID,
		Processed: res.Processed,
		Skipped:   res.Skipped,
		SyncedAt:  res.SyncedAt,
		Error:     res.Error,
	})
}

func (h *handlers) listRuns(c *gin.Context) {
	limit, err := queryLimit(c, common.DefaultPageLimit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	runs, err := h.Admin.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse{
			ID:               r.ID,
			Source:           r.Source,
			Status:           r.Status,
			RecordsProcessed: r.RecordsProcessed,
			RecordsSkipped:   r.RecordsSkipped,
			Error:            r.ErrorMessage,
			SyncedAt:         r.SyncedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (h *handlers) upsertPackage(c *gin.Context) {
	req, err := bindLocalFields(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	e, err := h.Admin.UpsertPackage(c.Request.Context(), c.Param("name"),
		enrichments.Patch{RegistryMeta: req.RegistryMeta, Visibility: req.Visibility})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, packageResponse{
		Name:         e.Name,
		RegistryMeta: e.RegistryMeta,
		Visibility:   e.Visibility,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	})
}

func (h *handlers) patchVersion(c *gin.Context) {
	req, err := bindLocalFields(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	s, err := h.Admin.PatchVersion(c.Request.Context(), c.Param("name"), c.Param("version"),
		servers.LocalPatch{RegistryMeta: req.RegistryMeta, Visibility: req.Visibility})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
