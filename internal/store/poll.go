package store

import (
	"context"
	"time"
)

const pollTTL = time.Hour

// PollState tracks one chat submission awaiting its answer.
type PollState struct {
	ChatKey   string    `json:"chatKey"`
	TabID     string    `json:"tabId"`
	StartedAt time.Time `json:"startedAt"`
	JobTitle  string    `json:"jobTitle,omitempty"`
	Company   string    `json:"company,omitempty"`
}

type PollStore struct {
	kv KV
}

func NewPollStore(kv KV) *PollStore {
	return &PollStore{kv: kv}
}

func pollKey(chatKey string) string { return "poll:" + chatKey }

func (s *PollStore) Put(ctx context.Context, st PollState) error {
	return s.kv.SetJSON(ctx, pollKey(st.ChatKey), st, pollTTL)
}

// Take removes the state and returns it. Of any number of concurrent callers
// for the same key, exactly one gets ok.
func (s *PollStore) Take(ctx context.Context, chatKey string) (PollState, bool, error) {
	var st PollState
	ok, err := s.kv.TakeJSON(ctx, pollKey(chatKey), &st)
	return st, ok, err
}

func (s *PollStore) Peek(ctx context.Context, chatKey string) (PollState, bool, error) {
	var st PollState
	ok, err := s.kv.GetJSON(ctx, pollKey(chatKey), &st)
	return st, ok, err
}
