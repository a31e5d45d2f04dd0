package builtinplugins

import (
	"context"
	"fmt"

	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/pluginapi"
	"github.com/hiagent/plugin-host/internal/wire"
)

func init() {
	pluginapi.Register("echo", &EchoPlugin{})
}

// EchoPlugin exercises the round-trip law RunTool(echo, input) == input and
// the streaming contract via count, which yields N items and optionally
// fails partway through (used to test the mid-stream error frame).
type EchoPlugin struct{}

func (p *EchoPlugin) GetMetadata() wire.Metadata {
	return wire.Metadata{
		MetaVersion: "1",
		Name:        "echo",
		Category:    "productivity",
		Description: "Echo and streaming-count reference tools",
		Tools: map[string]wire.ToolMetadata{
			"echo": {
				Name:        "echo",
				Description: "Returns its input unchanged",
			},
			"count": {
				Name:             "count",
				Description:      "Streams integers from 0 up to n, optionally failing at fail_at",
				RuntimeFeatures:  []string{"stream"},
			},
		},
	}
}

func (p *EchoPlugin) RunTool(ctx context.Context, tool string, input, config map[string]any) (any, error) {
	if tool != "echo" {
		return nil, errors.ActionNotFound(tool)
	}
	return input, nil
}

func (p *EchoPlugin) RunToolStream(ctx context.Context, tool string, input, config map[string]any, emit pluginapi.StreamFunc) error {
	if tool != "count" {
		return errors.ActionNotFound(tool)
	}

	n := intArg(input, "n", 3)
	failAt := intArg(input, "fail_at", -1)

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i == failAt {
			return fmt.Errorf("count failed at %d", i)
		}
		if err := emit(i); err != nil {
			return err
		}
	}
	return nil
}

func (p *EchoPlugin) RunValidate(ctx context.Context, config map[string]any) error {
	return nil
}

func (p *EchoPlugin) Ping() string {
	return "pong"
}

func intArg(input map[string]any, key string, def int) int {
	v, ok := input[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
