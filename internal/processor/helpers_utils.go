package processor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"subrender/internal/pkg/errors"
)

// NewArtifactName names an output file after its creation time. The random
// suffix keeps concurrent renders started in the same instant apart.
func NewArtifactName(now time.Time) string {
	return fmt.Sprintf("captioned_%d_%s.mp4", now.UnixNano(), uuid.NewString()[:8])
}

// ExtFromMime returns the file extension for a video MIME type.
func ExtFromMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	case "video/ogg":
		return ".ogv"
	case "video/mpeg":
		return ".mpeg"
	default:
		return ".bin"
	}
}

// withCode wraps err keeping an existing code, or assigning code to uncoded
// errors.
func withCode(err error, code errors.Code, op, message string) error {
	if err == nil {
		return nil
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		return errors.Wrap(err, op, message)
	}
	return errors.WrapWithCode(err, code, op, message)
}
