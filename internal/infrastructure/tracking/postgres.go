package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"jobpilot/internal/database"
)

// Postgres keeps the ledger in the service's own database. The tables come
// from the embedded migrations.
type Postgres struct {
	db database.DB
}

func NewPostgres(db database.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateJob(ctx context.Context, j NewJob) (string, error) {
	if p == nil || p.db == nil {
		return "", errors.New("nil db")
	}
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = p.db.Exec(ctx, `
INSERT INTO tracked_jobs (id, tab_id, url, title, company, fit_score, status, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
		id, j.TabID, j.Record.URL, j.Record.Title, j.Record.Company, j.Analysis.FitScore, StatusAnalyzed, string(data),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) PatchJob(ctx context.Context, id string, patch Patch) error {
	if p == nil || p.db == nil {
		return errors.New("nil db")
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var status *string
	if s := strings.TrimSpace(patch.Status()); s != "" {
		status = &s
	}
	var folder *string
	if s, ok := patch["resume_folder"].(string); ok && s != "" {
		folder = &s
	}
	var size *int64
	if n, ok := asInt64(patch["resume_size_bytes"]); ok {
		size = &n
	}

	n, err := p.db.Exec(ctx, `
UPDATE tracked_jobs
SET data = data || $2::jsonb,
	status = COALESCE($3, status),
	resume_folder = COALESCE($4, resume_folder),
	resume_size_bytes = COALESCE($5, resume_size_bytes),
	updated_at = now()
WHERE id = $1`,
		id, string(data), status, folder, size,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, jobID string, e Event) error {
	if p == nil || p.db == nil {
		return errors.New("nil db")
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	if e.Data == nil {
		data = []byte("{}")
	}
	n, err := p.db.Exec(ctx, `
INSERT INTO job_events (job_id, type, data, created_at)
SELECT id, $2, $3::jsonb, $4 FROM tracked_jobs WHERE id = $1`,
		jobID, e.Type, string(data), e.At.UTC(),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	}
	return 0, false
}
