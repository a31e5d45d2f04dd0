// Package wire defines the request/response envelopes exchanged between a
// client and a child worker over a unix domain socket, and the two framing
// strategies used to carry them: a single EOF-terminated JSON document for
// unary calls, and newline-delimited JSON documents for streaming calls.
//
// One connection carries exactly one request and its response(s); there is
// no multiplexing and no keep-alive, mirroring the original socket
// handler's single-shot dispatch.
package wire

import "github.com/hiagent/plugin-host/internal/errors"

// Action names dispatched by the child worker. These are the wire values
// of the request's "action" field, unchanged from the protocol this host
// replaces so existing package manifests and callers need no translation.
const (
	ActionRunTool       = "run_tool"
	ActionRunToolStream = "run_tool_stream"
	ActionRunValidate   = "run_validate"
	ActionRunMetadata   = "run_metadata"
	ActionRunPkgMeta    = "run_pkg_metadata"
	ActionRunPing       = "run_ping"
)

// Request is the single wire shape for all six actions; unused fields are
// simply omitted by the caller and ignored by handlers that don't need
// them. Keeping one struct (instead of six) avoids a discriminated-union
// decode step on the child side, which only ever needs req.Action to route.
type Request struct {
	Action string         `json:"action"`
	Plugin string         `json:"plugin,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Stream bool           `json:"stream,omitempty"`
}

// NewRunToolRequest builds a run_tool request.
func NewRunToolRequest(plugin, tool string, input, config map[string]any) Request {
	return Request{Action: ActionRunTool, Plugin: plugin, Tool: tool, Input: input, Config: config}
}

// NewRunToolStreamRequest builds a run_tool_stream request.
func NewRunToolStreamRequest(plugin, tool string, input, config map[string]any) Request {
	return Request{Action: ActionRunToolStream, Plugin: plugin, Tool: tool, Input: input, Config: config, Stream: true}
}

// NewRunValidateRequest builds a run_validate request.
func NewRunValidateRequest(plugin string, config map[string]any) Request {
	return Request{Action: ActionRunValidate, Plugin: plugin, Config: config}
}

// NewRunMetadataRequest builds a run_metadata request.
func NewRunMetadataRequest(plugin string) Request {
	return Request{Action: ActionRunMetadata, Plugin: plugin}
}

// NewRunPkgMetadataRequest builds a run_pkg_metadata request.
func NewRunPkgMetadataRequest() Request {
	return Request{Action: ActionRunPkgMeta}
}

// NewRunPingRequest builds a run_ping request.
func NewRunPingRequest(plugin string) Request {
	return Request{Action: ActionRunPing, Plugin: plugin}
}

// Resp is the response envelope: at most one of Data or Error is set; a
// successful action whose result is nil (run_validate) carries neither.
type Resp struct {
	Data  any            `json:"data,omitempty"`
	Error *errors.Error  `json:"error,omitempty"`
}

// Labels carries the plugin/tool's per-language display strings.
type Labels struct {
	NameEn         string `json:"name_en,omitempty"`
	NameZhHans     string `json:"name_zh_hans,omitempty"`
	NameZhHant     string `json:"name_zh_hant,omitempty"`
	DescriptionEn  string `json:"description_en,omitempty"`
	DescriptionZh  string `json:"description_zh_hans,omitempty"`
	DescriptionTra string `json:"description_zh_hant,omitempty"`
}

// PackageInfo identifies the package a plugin was loaded from.
type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolMetadata describes one callable tool exposed by a plugin.
type ToolMetadata struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Labels           Labels         `json:"labels"`
	InputSchema      map[string]any `json:"input_schema,omitempty"`
	OutputSchema     map[string]any `json:"output_schema,omitempty"`
	RuntimeFeatures  []string       `json:"runtime_features,omitempty"`
}

// Metadata is a plugin's full descriptor, returned by run_metadata and
// run_pkg_metadata.
type Metadata struct {
	MetaVersion  string                  `json:"meta_version"`
	Name         string                  `json:"name"`
	Category     string                  `json:"category"`
	Description  string                  `json:"description,omitempty"`
	Icon         string                  `json:"icon,omitempty"`
	MetadataPath string                  `json:"metadata_path,omitempty"`
	Labels       Labels                  `json:"labels"`
	ConfigSchema map[string]any          `json:"config_schema,omitempty"`
	PackageInfo  PackageInfo             `json:"package_info"`
	Tools        map[string]ToolMetadata `json:"tools"`
}
