package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subrender/internal/pkg/errors"
)

const validBody = `{
	"video": "/data/uploads/clip.mp4",
	"transcript": {"text": "hello world", "chunks": [
		{"text": "hello", "timestamp": [0, 1.5]},
		{"text": "world", "timestamp": [1.5, 12.5]}
	]},
	"subtitle_style": {"font": "Inter", "color": "#ffffff"},
	"vertical_zoom": true,
	"extra": 42
}`

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest([]byte(validBody))
	require.NoError(t, err)

	assert.Equal(t, "/data/uploads/clip.mp4", req.Video)
	assert.Equal(t, CaptionPhrase, req.CaptionMode)
	assert.Equal(t, Landscape, req.AspectRatio)
	assert.Equal(t, QualityMedium, req.Quality)
	assert.True(t, req.VerticalZoom)
	require.Len(t, req.Transcript.Chunks, 2)
}

func TestParseRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing transcript", `{"video":"a.mp4","subtitle_style":{}}`, "transcript"},
		{"null transcript", `{"video":"a.mp4","transcript":null,"subtitle_style":{}}`, "transcript"},
		{"missing style", `{"video":"a.mp4","transcript":{"chunks":[]}}`, "subtitle_style"},
		{"null style", `{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":null}`, "subtitle_style"},
		{"missing video", `{"transcript":{"chunks":[]},"subtitle_style":{}}`, "video"},
		{"bad caption mode", `{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":{},"caption_mode":"line"}`, "caption_mode"},
		{"bad quality", `{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":{},"quality":"ultra"}`, "quality"},
		{"bad ratio", `{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":{},"aspect_ratio":"4:3"}`, "aspect_ratio"},
		{"unordered chunks", `{"video":"a.mp4","subtitle_style":{},"transcript":{"chunks":[
			{"text":"b","timestamp":[3,4]},{"text":"a","timestamp":[1,2]}]}}`, "transcript.chunks"},
		{"zero length transcript", `{"video":"a.mp4","subtitle_style":{},"transcript":{"chunks":[
			{"text":"","timestamp":[0,0]}]}}`, "transcript"},
		{"transcript over the limit", `{"video":"a.mp4","subtitle_style":{},"transcript":{"chunks":[
			{"text":"a","timestamp":[0,1e17]}]}}`, "transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, body := range []string{`{`, `[]`, `"video"`, `null`} {
		_, err := ParseRequest([]byte(body))
		require.Error(t, err, body)
		assert.True(t, errors.IsValidation(err), body)
	}
}

func TestParseRequestNormalizesCase(t *testing.T) {
	req, err := ParseRequest([]byte(`{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":"bold",
		"quality":"HIGH","caption_mode":"Word","aspect_ratio":"9:16"}`))
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, req.Quality)
	assert.Equal(t, CaptionWord, req.CaptionMode)
	assert.Equal(t, Portrait, req.AspectRatio)
}

func TestInputProps(t *testing.T) {
	req, err := ParseRequest([]byte(validBody))
	require.NoError(t, err)

	props := req.InputProps("/data/staging/input_1.mp4")
	assert.Equal(t, "/data/staging/input_1.mp4", props["video"])
	assert.Equal(t, "phrase", props["caption_mode"])
	assert.Equal(t, "16:9", props["aspect_ratio"])
	assert.Equal(t, "medium", props["quality"])
	assert.EqualValues(t, 42, props["extra"])
	assert.NotNil(t, props["subtitle_style"])
	assert.NotNil(t, props["transcript"])

	props["extra"] = "changed"
	assert.EqualValues(t, 42, req.InputProps("x")["extra"], "props must be copied per call")
}

func TestParseRequestAcceptsRecognizerMessage(t *testing.T) {
	req, err := ParseRequest([]byte(`{"video":"a.mp4","subtitle_style":{},
		"transcript":{"status":"complete","time":2.1,"result":{"text":"hi there","chunks":[
			{"text":"hi","timestamp":[0,0.4]},{"text":"there","timestamp":[0.4,12.5]}]}}}`))
	require.NoError(t, err)

	require.Len(t, req.Transcript.Chunks, 2)
	assert.Equal(t, "hi there", req.Transcript.Text)
	assert.InDelta(t, 12.5, TotalDuration(req.Transcript.Chunks), 1e-9)

	props := req.InputProps("a.mp4")
	assert.Equal(t, req.Transcript, props["transcript"], "the composition receives the unwrapped transcript")
}

func TestParseRequestRejectsUnfinishedRecognizerMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"still running", `{"status":"progress","progress":0.3}`, "not finished"},
		{"recognizer error", `{"status":"error","message":"out of memory"}`, "out of memory"},
		{"complete without result", `{"status":"complete"}`, "without result"},
		{"unknown status", `{"status":"paused"}`, "paused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(`{"video":"a.mp4","subtitle_style":{},"transcript":` + tt.body + `}`))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, "transcript", errors.GetFields(err)["field"])
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
