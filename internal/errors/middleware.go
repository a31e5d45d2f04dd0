// Package errors — this file implements error handling middleware for the
// HTTP edge.
//
// The two conversion boundaries named in the design are the child's
// top-level dispatch (see internal/childserver) and this middleware: any
// error set on the gin context, or any panic, becomes the wire Error
// shape `{code, message, data?, http_code}`.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hiagent/plugin-host/internal/logger"
)

// envelope mirrors the wire response shape used by both the HTTP edge
// and the child socket protocol: `{data}` or `{error}`, never both.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a successful response envelope.
func JSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Data: data})
}

// ErrorHandler converts the last error set on the context (via HandleError
// or gin binding failures) into the wire error envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := Wrap(c.Errors.Last().Err)
		log := logger.HTTP()
		if err.HTTPCode >= 500 {
			log.Error().Str("code", err.Code).Str("message", err.Message).Msg("request failed")
		} else {
			log.Warn().Str("code", err.Code).Str("message", err.Message).Msg("request rejected")
		}
		c.JSON(err.HTTPCode, envelope{Error: err})
	}
}

// Recovery converts a panic into the wire error envelope instead of
// crashing the handler's goroutine.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := FromPanic(r)
				logger.HTTP().Error().Str("code", err.Code).Str("message", err.Message).Msg("panic recovered")
				c.JSON(err.HTTPCode, envelope{Error: err})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleError records err on the context and writes the error envelope
// immediately.
func HandleError(c *gin.Context, err error) {
	wrapped := Wrap(err)
	c.Error(wrapped)
	c.JSON(wrapped.HTTPCode, envelope{Error: wrapped})
}

// AbortWithError is HandleError followed by aborting the handler chain.
func AbortWithError(c *gin.Context, err error) {
	HandleError(c, err)
	c.Abort()
}
