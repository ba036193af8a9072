package processor

import (
	"fmt"
	"math"

	"subrender/internal/pkg/errors"
	"subrender/internal/transcription"
)

// FallbackDuration is used, in seconds, when a transcript has no chunks.
const FallbackDuration = 30.0

// MaxDuration caps, in seconds, how long a render may be.
const MaxDuration = 4 * 60 * 60.0

// frameEpsilon absorbs float noise such as 0.1*30 = 3.0000000000000004.
const frameEpsilon = 1e-9

// TotalDuration is the end of the last chunk, or FallbackDuration.
func TotalDuration(chunks []transcription.Chunk) float64 {
	if len(chunks) == 0 {
		return FallbackDuration
	}
	return chunks[len(chunks)-1].End()
}

// DurationInFrames converts the transcript length to a frame count.
// A non-positive result or a duration above MaxDuration is a validation error.
func DurationInFrames(chunks []transcription.Chunk, fps int) (int, error) {
	if fps <= 0 {
		return 0, errors.Newf(errors.CodeInternal, "invalid frame rate %d", fps)
	}

	seconds := TotalDuration(chunks)
	if math.IsInf(seconds, 0) || seconds > MaxDuration {
		return 0, errors.ValidationField("transcript", fmt.Sprintf("transcript duration %gs exceeds the %.0fs limit", seconds, MaxDuration)).
			WithField("duration_seconds", seconds)
	}
	frames := int(math.Ceil(seconds*float64(fps) - frameEpsilon))
	if frames <= 0 {
		return 0, errors.ValidationField("transcript", fmt.Sprintf("transcript duration %.3fs yields no frames", seconds)).
			WithField("duration_seconds", seconds)
	}
	return frames, nil
}

// ValidateChunks requires start <= end within each chunk and non-decreasing
// starts across chunks, so the last chunk marks the end of the video.
func ValidateChunks(chunks []transcription.Chunk) error {
	prevStart := math.Inf(-1)
	for i, c := range chunks {
		start, end := c.Start(), c.End()
		if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) || start < 0 {
			return errors.ValidationField("transcript.chunks", fmt.Sprintf("chunk %d has an invalid timestamp", i)).
				WithField("index", i)
		}
		if start > end {
			return errors.ValidationField("transcript.chunks", fmt.Sprintf("chunk %d ends before it starts", i)).
				WithField("index", i)
		}
		if start < prevStart {
			return errors.ValidationField("transcript.chunks", fmt.Sprintf("chunk %d starts before chunk %d", i, i-1)).
				WithField("index", i)
		}
		prevStart = start
	}
	return nil
}
