package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"

	"focusgate/internal/idgen"
)

// RequestIDKey is both the header name and the gin context key
const RequestIDKey = "X-Request-ID"

// callerRequestID is what a caller-supplied ID may look like. Anything else
// is replaced so it never reaches the logs verbatim.
var callerRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// RequestID keeps a well-formed caller request ID for correlation across the
// UI and automation clients, and assigns a req_ ID otherwise
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDKey)
		if !callerRequestID.MatchString(id) {
			id = idgen.NewRequest()
		}
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDKey, id)
		c.Next()
	}
}
