package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditRoutes is keyed by method and gin route pattern.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/auth/register":               {domain.AuditActionRegister, "profile"},
	"POST /api/v1/auth/login":                  {domain.AuditActionLogin, "session"},
	"POST /api/v1/orders/:id/cancel":           {domain.AuditActionCancelOrder, "order"},
	"POST /api/v1/orders/:id/dispute":          {domain.AuditActionOpenDispute, "order"},
	"PUT /api/v1/feed/orders/:id":              {domain.AuditActionSyncOrder, "order"},
	"PUT /api/v1/feed/orders/:id/transactions": {domain.AuditActionSyncTransactions, "order"},
}

// AuditLog records successful write operations once the handler has run.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route, ok := mapRouteToAction(c.Request.Method, c.FullPath())
		if !ok {
			return
		}

		var profileID *string
		if pid := ProfileID(c); pid != "" {
			profileID = &pid
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(response.CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ProfileID:    profileID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(method, fullPath string) (auditRoute, bool) {
	r, ok := auditRoutes[method+" "+fullPath]
	return r, ok
}
