package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier on the wire.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key for the request ID. The request
	// logger and the audit middleware both read it, so a single disclosure
	// attempt can be followed from the access log into the audit trail.
	RequestIDKey = "request_id"

	// maxRequestIDLength bounds an upstream-supplied ID. Anything longer is
	// discarded and replaced, since the value ends up in every log line and
	// audit record for the request.
	maxRequestIDLength = 64
)

// RequestIDMiddleware tags every request with an identifier. An inbound
// X-Request-ID from a trusted proxy is reused so the ID stays stable across
// hops; otherwise a fresh UUID is generated. The ID is stored under
// RequestIDKey and echoed in the response so a recipient reporting a failed
// disclosure can quote something an operator can actually search for.
//
// Register it right after gin.Recovery() so everything downstream, the
// request logger included, sees the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
