package processor

import (
	"encoding/json"

	"subrender/internal/transcription"
)

type CaptionMode string

const (
	CaptionWord   CaptionMode = "word"
	CaptionPhrase CaptionMode = "phrase"
)

// Request is one validated render request.
type Request struct {
	// Video is a file path reachable by the engine or a base64 data URI.
	Video         string                    `json:"video"`
	Transcript    *transcription.Transcript `json:"transcript"`
	SubtitleStyle json.RawMessage           `json:"subtitle_style"`
	CaptionMode   CaptionMode               `json:"caption_mode"`
	AspectRatio   AspectRatio               `json:"aspect_ratio"`
	VerticalZoom  bool                      `json:"vertical_zoom"`
	Quality       Quality                   `json:"quality"`

	// props is the full request payload, handed to the composition as its
	// input properties.
	props map[string]any
}

// Params are the derived render parameters reported back to callers.
type Params struct {
	FPS              int `json:"fps"`
	Width            int `json:"width"`
	Height           int `json:"height"`
	DurationInFrames int `json:"duration_in_frames"`
	CRF              int `json:"crf"`
}

// Result describes a finished render.
type Result struct {
	RenderID string
	// Artifact is the output file name inside the output directory.
	Artifact string
	Path     string
	// MirrorKey is the storage object key when a mirror is configured.
	MirrorKey string
	Params    Params
}
