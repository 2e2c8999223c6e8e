// audit.go provides Gin middleware that records write operations and secret
// disclosures to the audit trail.
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/secretdrop/secretdrop/internal/audit"
	"github.com/secretdrop/secretdrop/internal/config"
	"github.com/secretdrop/secretdrop/internal/safego"
)

// AuditMiddleware ships an audit record for every state-changing request and
// every disclosure attempt. Read operations are never recorded; failed writes
// are recorded only when audit.log_failed_requests is set. Shipping happens
// off the request goroutine so a slow destination cannot stall responses.
func AuditMiddleware(shipper audit.Shipper, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if shipper == nil || c.Request.Method == "OPTIONS" || c.Request.Method == "GET" {
			return
		}
		if c.Writer.Status() >= 400 && !cfg.LogFailedRequests {
			return
		}

		action, resource := classifyAction(c.Request.Method, c.FullPath())
		if action == "" {
			return
		}

		entry := &audit.Entry{
			Timestamp:  time.Now().UTC(),
			Action:     action,
			Resource:   resource,
			ResourceID: c.Param("id"),
			IPAddress:  c.ClientIP(),
			StatusCode: c.Writer.Status(),
		}
		if userID, ok := c.Get("user_id"); ok {
			if uid, ok := userID.(string); ok {
				entry.UserID = uid
			}
		}
		if requestID, ok := c.Get(RequestIDKey); ok {
			if rid, ok := requestID.(string); ok {
				entry.Metadata = map[string]interface{}{"request_id": rid}
			}
		}

		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shipper.Ship(ctx, entry)
		})
	}
}

// classifyAction maps a route to an audit action and resource type. Unmapped
// routes produce no record.
func classifyAction(method, path string) (action, resource string) {
	switch {
	case strings.HasSuffix(path, "/view"):
		return "secret.viewed", "secret"
	case strings.Contains(path, "/auth/register"):
		return "account.registered", "account"
	case strings.Contains(path, "/auth/login"):
		return "account.login", "account"
	case strings.Contains(path, "/auth/password"):
		return "account.password_changed", "account"
	case strings.Contains(path, "/auth/profile"):
		return "account.profile_updated", "account"
	case strings.Contains(path, "/secrets"):
		switch method {
		case "POST":
			return "secret.created", "secret"
		case "PUT":
			return "secret.updated", "secret"
		case "DELETE":
			return "secret.deleted", "secret"
		}
	}
	return "", ""
}
