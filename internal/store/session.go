package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const sessionTTL = 12 * time.Hour

// SessionStore scopes tracking ids to one process lifetime: every boot gets a
// fresh scope, so ids from a previous run are never found again.
type SessionStore struct {
	kv    KV
	scope string
}

func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv, scope: uuid.NewString()}
}

func (s *SessionStore) Scope() string { return s.scope }

func (s *SessionStore) trackingKey(tabID string) string {
	return "session:" + s.scope + ":tracking:" + tabID
}

func (s *SessionStore) SetTrackingID(ctx context.Context, tabID, id string) error {
	return s.kv.SetJSON(ctx, s.trackingKey(tabID), id, sessionTTL)
}

func (s *SessionStore) TrackingID(ctx context.Context, tabID string) (string, bool, error) {
	var id string
	ok, err := s.kv.GetJSON(ctx, s.trackingKey(tabID), &id)
	return id, ok && id != "", err
}

func (s *SessionStore) Clear(ctx context.Context, tabID string) error {
	return s.kv.Delete(ctx, s.trackingKey(tabID))
}
