package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SkipLoggingKey marks a request the Logging middleware should drop
const SkipLoggingKey = "skip_logging"

var (
	scannerPrefixes = []string{
		"/admin", "/phpmyadmin", "/wp-", "/.env", "/.git", "/.aws",
		"/cgi-bin", "/actuator", "/console", "/backup",
	}
	scannerSuffixes = []string{".php", ".asp", ".aspx", ".jsp", ".bak", ".sql", ".zip"}
)

// NoiseFilter marks unauthenticated scanner probes so they are not logged.
// Register it after Logging so the flag is set before Logging reads it.
func NoiseFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.GetBool("authenticated") {
			return
		}
		status := c.Writer.Status()
		if status == http.StatusMethodNotAllowed || (status >= 400 && isScannerPath(c.Request.URL.Path)) {
			c.Set(SkipLoggingKey, true)
		}
	}
}

func isScannerPath(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range scannerPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, s := range scannerSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
