package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/pkg/middleware/requestid"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// requestTrace is stored as the new_values of route-level audit rows.
type requestTrace struct {
	Route     string `json:"route"`
	Method    string `json:"method"`
	Query     string `json:"query,omitempty"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	RequestID string `json:"request_id,omitempty"`
}

// Audit writes one row per successful staff request on the route. The row
// is written after the response and outlives client cancellation; write
// errors are logged only.
func Audit(repo auditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if repo == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 || c.IsAborted() {
			return
		}
		claims, ok := CurrentClaims(c)
		if ok && !claims.Role.Staff() {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if ok {
			entry.UserID = &claims.UserID
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(requestTrace{
			Route:     c.FullPath(),
			Method:    c.Request.Method,
			Query:     c.Request.URL.RawQuery,
			Status:    status,
			LatencyMS: time.Since(start).Milliseconds(),
			RequestID: requestid.Value(c),
		})

		if err := repo.CreateAuditLog(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("audit write failed",
				zap.String("action", action),
				zap.String("route", c.FullPath()),
				zap.Error(err))
		}
	}
}
