package processor

import (
	"subrender/internal/pkg/errors"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
)

// Preset is the encode geometry and quality for one tier and aspect ratio.
type Preset struct {
	FrameRate int
	Width     int
	Height    int
	// CRF is the encoder quality knob; lower is better.
	CRF int
}

// landscapePresets are the 16:9 presets. Portrait is the transpose.
var landscapePresets = map[Quality]Preset{
	QualityLow:    {FrameRate: 24, Width: 960, Height: 540, CRF: 28},
	QualityMedium: {FrameRate: 30, Width: 1280, Height: 720, CRF: 24},
	QualityHigh:   {FrameRate: 30, Width: 1920, Height: 1080, CRF: 20},
}

// ResolvePreset maps a tier and aspect ratio to its preset. Anything outside
// the three tiers and two ratios is rejected.
func ResolvePreset(q Quality, ar AspectRatio) (Preset, error) {
	p, ok := landscapePresets[q]
	if !ok {
		return Preset{}, errors.ValidationField("quality", "unsupported quality: "+string(q)).
			WithField("allowed", "low,medium,high")
	}

	switch ar {
	case Landscape:
		return p, nil
	case Portrait:
		p.Width, p.Height = p.Height, p.Width
		return p, nil
	default:
		return Preset{}, errors.ValidationField("aspect_ratio", "unsupported aspect ratio: "+string(ar)).
			WithField("allowed", "16:9,9:16")
	}
}

func (q Quality) valid() bool {
	_, ok := landscapePresets[q]
	return ok
}

func (ar AspectRatio) valid() bool {
	return ar == Landscape || ar == Portrait
}
