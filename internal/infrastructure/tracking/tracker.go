// Package tracking records job applications in the external system of
// record. Every call made through Recorder is fire-and-forget.
package tracking

import (
	"context"
	"errors"
	"time"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
)

var ErrNotFound = errors.New("tracked job not found")

const (
	StatusAnalyzed      = "analyzed"
	StatusChatResponded = "chat_responded"
	StatusResumeReady   = "resume_ready"
)

const (
	EventAnalyzed      = "analyzed"
	EventChatResponse  = "chat_response"
	EventResumeCreated = "resume_created"
)

// NewJob is the payload of the first write for a posting.
type NewJob struct {
	TabID    string       `json:"tab_id"`
	Record   job.Record   `json:"job"`
	Analysis analysis.Fit `json:"analysis"`
	Method   string       `json:"extraction_method"`
}

type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// Patch is a partial update merged into the stored record.
type Patch map[string]any

func (p Patch) Status() string {
	s, _ := p["status"].(string)
	return s
}

type Tracker interface {
	CreateJob(ctx context.Context, j NewJob) (string, error)
	PatchJob(ctx context.Context, id string, p Patch) error
	AppendEvent(ctx context.Context, jobID string, e Event) error
}

type Noop struct{}

func (Noop) CreateJob(context.Context, NewJob) (string, error) { return "", nil }
func (Noop) PatchJob(context.Context, string, Patch) error     { return nil }
func (Noop) AppendEvent(context.Context, string, Event) error  { return nil }
