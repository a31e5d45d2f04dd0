// Package builtinplugins ships reference plugins compiled into the
// pluginworker binary: time, exercising a single synchronous tool, and
// echo, exercising the round-trip and streaming contracts.
package builtinplugins

import (
	"context"
	"time"

	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/pluginapi"
	"github.com/hiagent/plugin-host/internal/wire"
)

func init() {
	pluginapi.Register("time", &TimePlugin{})
}

// TimePlugin exposes a current_time tool, modeled on the regex extraction
// plugin's shape: one plugin, one tool, no config.
type TimePlugin struct{}

func (p *TimePlugin) GetMetadata() wire.Metadata {
	return wire.Metadata{
		MetaVersion: "1",
		Name:        "time",
		Category:    "productivity",
		Description: "Current time lookup",
		Tools: map[string]wire.ToolMetadata{
			"current_time": {
				Name:        "current_time",
				Description: "Returns the current time in a given format and timezone",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"format":   map[string]any{"type": "string", "description": "time.Format layout, defaults to '2006-01-02 15:04:05 MST'"},
						"timezone": map[string]any{"type": "string", "description": "IANA timezone name, defaults to UTC"},
					},
				},
			},
		},
	}
}

func (p *TimePlugin) RunTool(ctx context.Context, tool string, input, config map[string]any) (any, error) {
	if tool != "current_time" {
		return nil, errors.ActionNotFound(tool)
	}

	loc := time.UTC
	if tz, ok := input["timezone"].(string); ok && tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.InvalidRequest("unknown timezone: " + tz)
		}
		loc = l
	}

	layout := "2006-01-02 15:04:05 MST"
	if f, ok := input["format"].(string); ok && f != "" {
		layout = f
	}

	return time.Now().In(loc).Format(layout), nil
}

func (p *TimePlugin) RunToolStream(ctx context.Context, tool string, input, config map[string]any, emit pluginapi.StreamFunc) error {
	return errors.ActionNotFound(tool)
}

func (p *TimePlugin) RunValidate(ctx context.Context, config map[string]any) error {
	return nil
}

func (p *TimePlugin) Ping() string {
	return "pong"
}
