package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/compose"
	"github.com/dmitrijs2005/regmirror/internal/server/services"
	"github.com/gin-gonic/gin"
)

// listMetadata mirrors the upstream envelope; nextCursor is null on the last page.
type listMetadata struct {
	Count      int     `json:"count"`
	NextCursor *string `json:"nextCursor"`
}

type listResponse struct {
	Servers  []compose.ServerJSON `json:"servers"`
	Metadata listMetadata         `json:"metadata"`
}

// queryLimit reads the limit query parameter; absent means def.
func queryLimit(c *gin.Context, def int) (int, error) {
	raw, ok := c.GetQuery("limit")
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit %q is not an integer", common.ErrInvalidArgument, raw)
	}
	return n, nil
}

func (h *handlers) listServers(c *gin.Context) {
	limit, err := queryLimit(c, common.DefaultPageLimit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.Queries.List(c.Request.Context(), services.ListParams{
		Visibility: c.Query("visibility"),
		Status:     c.Query("status"),
		Cursor:     c.Query("cursor"),
		Limit:      limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	meta := listMetadata{Count: len(res.Servers)}
	if res.NextCursor != "" {
		meta.NextCursor = &res.NextCursor
	}
	c.JSON(http.StatusOK, listResponse{Servers: res.Servers, Metadata: meta})
}

func (h *handlers) getLatest(c *gin.Context) {
	s, err := h.Queries.GetLatest(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) listVersions(c *gin.Context) {
	list, err := h.Queries.ListVersions(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Servers: list, Metadata: listMetadata{Count: len(list)}})
}

func (h *handlers) getVersion(c *gin.Context) {
	s, err := h.Queries.GetVersion(c.Request.Context(), c.Param("name"), c.Param("version"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
