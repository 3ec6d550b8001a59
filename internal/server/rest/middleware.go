package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/dmitrijs2005/regmirror/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	subjectKey      = "subject"
)

// requestLogger tags every request with an id and logs it once served.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		c.Next()

		logger.Info(c.Request.Context(), "http request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.Error(c.Request.Context(), "panic while serving request", "path", c.Request.URL.Path, "panic", rec)
		abortWithError(c, http.StatusInternalServerError, codeInternal, common.ErrorInternal.Error())
	})
}

// requireAdmin accepts "Authorization: Bearer <jwt>" carrying the admin role.
func requireAdmin(secret []byte, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.RequireRole(token, secret, auth.RoleAdmin)
		if err != nil {
			logger.Warn(c.Request.Context(), "admin authentication failed", "path", c.Request.URL.Path, "error", err)
			abortWithError(c, http.StatusUnauthorized, codeUnauthorized, err.Error())
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}
