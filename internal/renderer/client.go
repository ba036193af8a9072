package renderer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	contracts "subrender/internal/contracts/renderer/v0"
	"subrender/internal/pkg/errors"
)

const maxEventLine = 1 << 20

// HTTPClient talks to the render engine service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for baseURL. Renders are long lived streams,
// so deadlines come from the caller's context rather than the http.Client.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *HTTPClient) Bundle(ctx context.Context, entryPoint string) (Bundle, error) {
	var out contracts.BundleResponse
	status, msg, err := c.postJSON(ctx, "/bundles", contracts.BundleRequest{EntryPoint: entryPoint}, &out)
	if err != nil {
		return Bundle{}, errors.WrapWithCode(err, errors.CodeBundleBuild, "renderer.bundle", "bundle request failed")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return Bundle{}, errors.Newf(errors.CodeBundleBuild, "bundle build failed (http %d): %s", status, msg).
			WithField("entry_point", entryPoint)
	}
	if out.ServeURL == "" {
		return Bundle{}, errors.New(errors.CodeBundleBuild, "bundle response has no serve_url")
	}

	return Bundle{ID: out.BundleID, ServeURL: out.ServeURL, BuiltAt: time.Now().UTC()}, nil
}

func (c *HTTPClient) SelectComposition(ctx context.Context, bundle Bundle, id string, inputProps map[string]any) (Composition, error) {
	var out contracts.Composition
	status, msg, err := c.postJSON(ctx, "/compositions/select", contracts.SelectCompositionRequest{
		ServeURL:      bundle.ServeURL,
		CompositionID: id,
		InputProps:    inputProps,
	}, &out)
	if err != nil {
		return Composition{}, errors.Wrap(err, "renderer.select", "select composition request failed")
	}

	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		return Composition{}, errors.Newf(errors.CodeCompositionNotFound, "composition %q not found in bundle", id).
			WithField("composition_id", id)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Composition{}, errors.Newf(errors.CodeCompositionInput, "composition %q rejected input props: %s", id, msg).
			WithField("composition_id", id)
	default:
		return Composition{}, errors.Newf(errors.CodeInternal, "select composition failed (http %d): %s", status, msg)
	}

	return Composition{
		ID:               out.ID,
		Width:            out.Width,
		Height:           out.Height,
		FPS:              out.FPS,
		DurationInFrames: out.DurationInFrames,
		DefaultProps:     out.DefaultProps,
	}, nil
}

// RenderMedia posts the render and consumes the NDJSON event stream until a
// done or error event. A stream that ends without either is a failure.
func (c *HTTPClient) RenderMedia(ctx context.Context, opts RenderOptions, onProgress ProgressFunc) error {
	body, err := json.Marshal(contracts.RenderRequest{
		ServeURL: opts.Bundle.ServeURL,
		Composition: contracts.Composition{
			ID:               opts.Composition.ID,
			Width:            opts.Composition.Width,
			Height:           opts.Composition.Height,
			FPS:              opts.Composition.FPS,
			DurationInFrames: opts.Composition.DurationInFrames,
			DefaultProps:     opts.Composition.DefaultProps,
		},
		Codec:          opts.Codec,
		CRF:            opts.CRF,
		X264Preset:     opts.X264Preset,
		Concurrency:    opts.Concurrency,
		InputProps:     opts.InputProps,
		OutputLocation: opts.OutputPath,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.render", "encode render request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/renders", bytes.NewReader(body))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.render", "build render request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.render", "render request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Newf(errors.CodeRenderFailed, "render failed (http %d): %s", res.StatusCode, readErrorMessage(res.Body))
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev contracts.RenderEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.render", "malformed render event")
		}

		switch ev.Type {
		case contracts.EventProgress:
			if onProgress != nil {
				onProgress(clamp01(ev.Progress))
			}
		case contracts.EventError:
			msg := strings.TrimSpace(ev.Message)
			if msg == "" {
				msg = "render engine reported an error"
			}
			return errors.New(errors.CodeRenderFailed, msg)
		case contracts.EventDone:
			if onProgress != nil {
				onProgress(1)
			}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.render", "render stream interrupted")
	}

	return errors.New(errors.CodeRenderFailed, "render stream ended before completion")
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in any, out any) (int, string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res.StatusCode, readErrorMessage(res.Body), nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return res.StatusCode, "", fmt.Errorf("decode %s response: %w", path, err)
	}
	return res.StatusCode, "", nil
}

// readErrorMessage extracts the engine's diagnostic from an error body,
// falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var eb contracts.ErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "no diagnostic"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
