// Package v0 is the wire contract of the render engine service. The engine
// bundles a composition entry point once, resolves named compositions from
// that bundle and renders them to a file on the shared volume, streaming
// NDJSON progress events while it works.
package v0

// BundleRequest asks the engine to compile an entry point.
type BundleRequest struct {
	EntryPoint string `json:"entry_point"`
}

// BundleResponse identifies a compiled bundle.
type BundleResponse struct {
	BundleID string `json:"bundle_id"`
	ServeURL string `json:"serve_url"`
}

// SelectCompositionRequest resolves a composition and validates input_props
// against the composition's own schema.
type SelectCompositionRequest struct {
	ServeURL      string         `json:"serve_url"`
	CompositionID string         `json:"composition_id"`
	InputProps    map[string]any `json:"input_props"`
}

// Composition is a resolved composition descriptor.
type Composition struct {
	ID               string         `json:"id"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	FPS              int            `json:"fps"`
	DurationInFrames int            `json:"duration_in_frames"`
	DefaultProps     map[string]any `json:"default_props,omitempty"`
}

// RenderRequest drives one render. output_location is an absolute path on
// the volume shared with the orchestrator.
type RenderRequest struct {
	ServeURL       string         `json:"serve_url"`
	Composition    Composition    `json:"composition"`
	Codec          string         `json:"codec"`
	CRF            int            `json:"crf"`
	X264Preset     string         `json:"x264_preset"`
	Concurrency    int            `json:"concurrency"`
	InputProps     map[string]any `json:"input_props"`
	OutputLocation string         `json:"output_location"`
}

// Render stream event types.
const (
	EventProgress = "progress"
	EventError    = "error"
	EventDone     = "done"
)

// RenderEvent is one NDJSON line of the render stream.
type RenderEvent struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ErrorBody is returned with non-2xx statuses.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
