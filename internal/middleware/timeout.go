package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig configures per-request deadline enforcement.
type TimeoutConfig struct {
	Timeout      time.Duration
	ErrorMessage string
	// ExcludedPaths are path prefixes that run without a deadline, for
	// handlers expected to hold the connection open (SSE streams).
	ExcludedPaths []string
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:      30 * time.Second,
		ErrorMessage: "request timeout",
	}
}

// Timeout aborts a request that runs past config.Timeout, returning 408.
// A child-worker call (such as RunPluginValidate or GetPackageMetadata)
// that hangs is the case this guards against; excluded paths manage their
// own lifetime via the client's request context instead.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, excluded := range config.ExcludedPaths {
			if strings.HasPrefix(path, excluded) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   config.ErrorMessage,
				"timeout": config.Timeout.String(),
			})
		}
	}
}

func TimeoutWithDuration(timeout time.Duration, excludedPaths ...string) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	config.ExcludedPaths = excludedPaths
	return Timeout(config)
}
