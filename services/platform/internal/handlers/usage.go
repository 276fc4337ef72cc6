package handlers

import (
	"time"

	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// recordUsage logs one usage entry per authenticated request after the
// handler has written its response.
func (h *Handler) recordUsage(tenantOf func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.usage == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		tenantID, ok := tenantOf(c)
		if !ok {
			return
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		h.usage.Record(storage.UsageLog{
			TenantID:   tenantID,
			Endpoint:   c.Request.Method + " " + endpoint,
			StatusCode: c.Writer.Status(),
			ResponseMS: int(time.Since(start).Milliseconds()),
			LoggedAt:   h.now().UTC(),
		})
	}
}
