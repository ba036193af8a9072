package processor

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"subrender/internal/pkg/errors"
)

// StagedInput is the video the engine reads. Temp marks a file this request
// created and must delete.
type StagedInput struct {
	Path string
	Temp bool
}

// InputHandler turns inline video payloads into staged files.
type InputHandler struct {
	stagingDir string
}

func NewInputHandler(stagingDir string) *InputHandler {
	return &InputHandler{stagingDir: stagingDir}
}

// IsInline reports whether video is a data URI rather than a file reference.
func IsInline(video string) bool {
	return len(video) >= 5 && strings.EqualFold(video[:5], "data:")
}

// Materialize writes an inline video to a uniquely named file under the
// staging directory. File references pass through untracked.
func (ih *InputHandler) Materialize(ctx context.Context, video string) (StagedInput, error) {
	if !IsInline(video) {
		return StagedInput{Path: video}, nil
	}

	mime, payload, err := parseDataURI(video)
	if err != nil {
		return StagedInput{}, err
	}
	if err := ctx.Err(); err != nil {
		return StagedInput{}, errors.WrapWithCode(err, errors.CodeMaterialization, "materialize", "request ended before staging")
	}

	if err := os.MkdirAll(ih.stagingDir, 0o755); err != nil {
		return StagedInput{}, errors.WrapWithCode(err, errors.CodeMaterialization, "materialize", "failed to create staging directory").
			WithField("dir", ih.stagingDir)
	}

	path := filepath.Join(ih.stagingDir, "input_"+uuid.NewString()+ExtFromMime(mime))
	if err := writeDecoded(path, payload); err != nil {
		_ = os.Remove(path)
		return StagedInput{}, errors.WrapWithCode(err, errors.CodeMaterialization, "materialize", "failed to stage inline video").
			WithField("path", path)
	}

	return StagedInput{Path: path, Temp: true}, nil
}

func writeDecoded(path, payload string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload))
	n, err := io.Copy(f, dec)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// parseDataURI splits "data:<mime>;base64,<payload>".
func parseDataURI(uri string) (mime, payload string, err error) {
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return "", "", errors.New(errors.CodeMaterialization, "malformed data URI: missing payload separator")
	}

	params := strings.Split(header, ";")
	mime = strings.TrimSpace(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", "", errors.New(errors.CodeMaterialization, "inline video must be base64 encoded")
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", "", errors.New(errors.CodeMaterialization, "inline video payload is empty")
	}
	return mime, payload, nil
}
