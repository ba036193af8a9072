// Package transcription decodes the responses of the speech recognition
// worker and holds the transcript shape it produces.
package transcription

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Chunk is one timed span of recognized text. Timestamp is [start, end] in
// seconds.
type Chunk struct {
	Text      string     `json:"text"`
	Timestamp [2]float64 `json:"timestamp"`
}

func (c Chunk) Start() float64 { return c.Timestamp[0] }
func (c Chunk) End() float64   { return c.Timestamp[1] }

// Transcript is the recognizer output consumed by renders.
type Transcript struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks"`
}

// Status values of worker responses.
const (
	StatusLoading  = "loading"
	StatusProgress = "progress"
	StatusReady    = "ready"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Message is a decoded worker response. Only the fields of its Status are set.
type Message struct {
	Status string `json:"status"`
	// Data is the human readable loading stage.
	Data     string      `json:"data,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Result   *Transcript `json:"result,omitempty"`
	// Time is the elapsed recognition time in seconds.
	Time    float64 `json:"time,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Decode parses one worker response and checks it is well formed for its status.
func Decode(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode transcription message: %w", err)
	}
	m.Status = strings.ToLower(strings.TrimSpace(m.Status))

	switch m.Status {
	case StatusLoading, StatusReady:
	case StatusProgress:
		if m.Progress < 0 || m.Progress > 1 {
			return nil, fmt.Errorf("progress out of range: %v", m.Progress)
		}
	case StatusComplete:
		if m.Result == nil {
			return nil, fmt.Errorf("complete message without result")
		}
	case StatusError:
		if strings.TrimSpace(m.Message) == "" {
			m.Message = "transcription failed"
		}
	case "":
		return nil, fmt.Errorf("transcription message has no status")
	default:
		return nil, fmt.Errorf("unknown transcription status %q", m.Status)
	}

	return &m, nil
}

// Transcript returns the result of a complete message.
func (m *Message) Transcript() (*Transcript, error) {
	switch m.Status {
	case StatusComplete:
		return m.Result, nil
	case StatusError:
		return nil, fmt.Errorf("transcription error: %s", m.Message)
	default:
		return nil, fmt.Errorf("message %q carries no transcript", m.Status)
	}
}

// Terminal reports whether no further messages follow for the current run.
func (m *Message) Terminal() bool {
	return m.Status == StatusComplete || m.Status == StatusError
}
