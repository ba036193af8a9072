package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"subrender/internal/pkg/errors"
	"subrender/internal/transcription"
)

// ParseRequest decodes a render request body, applies defaults and validates
// it. The raw payload is kept as the composition's input properties. The
// transcript may be given directly or as the recognizer's complete message.
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "request body is not valid JSON")
	}

	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil || props == nil {
		return nil, errors.Validation("request body must be a JSON object")
	}
	req.props = props

	if err := req.unwrapWorkerTranscript(props["transcript"]); err != nil {
		return nil, err
	}

	req.applyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// unwrapWorkerTranscript replaces a transcript given as a recognizer message
// with the transcript it carries.
func (r *Request) unwrapWorkerTranscript(v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if _, ok := obj["status"]; !ok {
		return nil
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "transcript is not valid JSON")
	}
	msg, err := transcription.Decode(raw)
	if err != nil {
		return errors.ValidationField("transcript", err.Error())
	}
	if !msg.Terminal() {
		return errors.ValidationField("transcript", fmt.Sprintf("transcription is not finished (status %s)", msg.Status))
	}
	tr, err := msg.Transcript()
	if err != nil {
		return errors.ValidationField("transcript", err.Error())
	}

	r.Transcript = tr
	r.props["transcript"] = tr
	return nil
}

func (r *Request) applyDefaults() {
	r.Video = strings.TrimSpace(r.Video)
	if r.CaptionMode == "" {
		r.CaptionMode = CaptionPhrase
	}
	if r.AspectRatio == "" {
		r.AspectRatio = Landscape
	}
	if r.Quality == "" {
		r.Quality = QualityMedium
	}
	r.CaptionMode = CaptionMode(strings.ToLower(string(r.CaptionMode)))
	r.Quality = Quality(strings.ToLower(string(r.Quality)))
}

// Validate checks every field the pipeline relies on. It runs before any
// file or engine work.
func (r *Request) Validate() error {
	if r.Transcript == nil {
		return errors.ValidationField("transcript", "transcript is required")
	}
	if isAbsent(r.SubtitleStyle) {
		return errors.ValidationField("subtitle_style", "subtitle_style is required")
	}
	if r.Video == "" {
		return errors.ValidationField("video", "video is required")
	}
	if r.CaptionMode != CaptionWord && r.CaptionMode != CaptionPhrase {
		return errors.ValidationField("caption_mode", "caption_mode must be word or phrase").
			WithField("value", string(r.CaptionMode))
	}
	if !r.Quality.valid() {
		return errors.ValidationField("quality", "quality must be low, medium or high").
			WithField("value", string(r.Quality))
	}
	if !r.AspectRatio.valid() {
		return errors.ValidationField("aspect_ratio", "aspect_ratio must be 16:9 or 9:16").
			WithField("value", string(r.AspectRatio))
	}
	if err := ValidateChunks(r.Transcript.Chunks); err != nil {
		return err
	}

	preset, err := ResolvePreset(r.Quality, r.AspectRatio)
	if err != nil {
		return err
	}
	_, err = DurationInFrames(r.Transcript.Chunks, preset.FrameRate)
	return err
}

// InputProps returns a copy of the request payload with the resolved defaults
// and videoPath in place of the original video source.
func (r *Request) InputProps(videoPath string) map[string]any {
	out := make(map[string]any, len(r.props)+4)
	for k, v := range r.props {
		out[k] = v
	}
	out["video"] = videoPath
	out["caption_mode"] = string(r.CaptionMode)
	out["aspect_ratio"] = string(r.AspectRatio)
	out["quality"] = string(r.Quality)
	return out
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
