package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// hasBody is true unless the request says it has no body. Chunked requests
// report -1 and count as having one.
func hasBody(r *http.Request) bool {
	return r.ContentLength != 0
}

// isJSON accepts application/json and structured +json types such as
// application/merge-patch+json
func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// ContentType rejects command bodies that are not JSON. Session commands
// without a body, such as emergency-unblock, pass through untouched.
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if hasBody(c.Request) && !isJSON(c.ContentType()) {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error": "request body must be JSON",
					"code":  "INVALID_CONTENT_TYPE",
				})
				return
			}
		}
		c.Next()
	}
}
