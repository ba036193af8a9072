package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RenderStatus string

const (
	RenderQueued  RenderStatus = "QUEUED"
	RenderRunning RenderStatus = "RUNNING"
	RenderDone    RenderStatus = "DONE"
	RenderFailed  RenderStatus = "FAILED"
)

// Terminal reports whether the render will not change again.
func (s RenderStatus) Terminal() bool {
	return s == RenderDone || s == RenderFailed
}

type Render struct {
	ID          string          `json:"id"`
	Status      RenderStatus    `json:"status"`
	Quality     string          `json:"quality"`
	AspectRatio string          `json:"aspect_ratio"`
	Request     json.RawMessage `json:"-"`
	Artifact    string          `json:"artifact,omitempty"`
	MirrorKey   string          `json:"mirror_key,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// NewRenderID returns a fresh render id.
func NewRenderID() string {
	return "rnd_" + uuid.NewString()
}
