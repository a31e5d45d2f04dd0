package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hiagent/plugin-host/internal/client"
	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/logger"
	"github.com/hiagent/plugin-host/internal/wire"
)

// runPluginToolStream serves a streaming tool call as Server-Sent Events:
// one "message" event per item the child produces, followed by exactly one
// terminal "close" event. A mid-stream error is carried as one final
// "message" event whose payload is {"error": ...} rather than a non-200
// status, since the response has already started — the same
// exactly-one-error-frame invariant the wire protocol itself guarantees
// between child and client.
func (s *Server) runPluginToolStream(c *gin.Context, req runToolRequest) {
	ctx := c.Request.Context()

	child, isNew, err := s.procmgr.Ensure(req.Pkg, req.Version)
	if err != nil {
		c.Error(err)
		return
	}
	if isNew {
		// Streaming calls don't get their own bootstrap retry loop: a
		// successful ping first confirms the child is up, then the
		// stream itself is dialed once.
		if err := client.Ping(ctx, child.Addr, req.Plugin, s.retry); err != nil {
			c.Error(err)
			return
		}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, canFlush := c.Writer.(http.Flusher)

	wireReq := wire.NewRunToolStreamRequest(req.Plugin, req.Tool, req.Input, req.Cfg)
	streamErr := client.RequestStream(ctx, child.Addr, wireReq, func(item any) error {
		writeSSE(c.Writer, "message", gin.H{"data": item})
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if streamErr != nil {
		logger.HTTP().Warn().Err(streamErr).Str("pkg", req.Pkg).Str("tool", req.Tool).Msg("plugin stream ended with error")
		writeSSE(c.Writer, "message", gin.H{"error": apierrors.Wrap(streamErr)})
		if canFlush {
			flusher.Flush()
		}
	}

	writeSSE(c.Writer, "close", gin.H{})
	if canFlush {
		flusher.Flush()
	}
}

func writeSSE(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
