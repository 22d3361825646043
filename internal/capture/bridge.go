package capture

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	KindChunk = "chunk"
	KindEnd   = "end"
	KindAbort = "abort"
)

// Message is one post from the in-page hook.
type Message struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	URL  string `json:"url"`
	Data string `json:"data,omitempty"`
}

// finishedTTL is how long a closed capture id keeps rejecting late chunks.
const finishedTTL = 2 * time.Minute

type Sink func(Completion)

type sessionKey struct {
	chatKey string
	id      string
}

// Bridge correlates hook messages by chat key and capture id and forwards
// qualifying completions to the sink.
type Bridge struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
	finished map[sessionKey]time.Time
	sink     Sink
	logger   *log.Logger

	now func() time.Time
}

func NewBridge(sink Sink, logger *log.Logger) *Bridge {
	return &Bridge{
		sessions: map[sessionKey]*Session{},
		finished: map[sessionKey]time.Time{},
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// HandlePayload decodes a raw binding payload.
func (b *Bridge) HandlePayload(chatKey, payload string) error {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return fmt.Errorf("decode capture message: %w", err)
	}
	b.Dispatch(chatKey, m)
	return nil
}

func (b *Bridge) Dispatch(chatKey string, m Message) {
	if b == nil || m.ID == "" {
		return
	}
	key := sessionKey{chatKey: chatKey, id: m.ID}

	switch m.Kind {
	case KindChunk:
		b.mu.Lock()
		if _, done := b.finished[key]; done {
			b.mu.Unlock()
			return
		}
		s, ok := b.sessions[key]
		if !ok {
			s = NewSession(m.URL)
			b.sessions[key] = s
		}
		b.mu.Unlock()
		_, _ = s.Write([]byte(m.Data))
	case KindEnd, KindAbort:
		b.mu.Lock()
		s, ok := b.sessions[key]
		delete(b.sessions, key)
		b.markFinished(key)
		b.mu.Unlock()
		if !ok {
			return
		}
		s.SetURL(m.URL)
		c, emit := s.Finish(m.Kind == KindAbort)
		if !emit {
			if b.logger != nil {
				b.logger.Printf("[Capture] stream closed without usable text | chat=%s kind=%s", chatKey, m.Kind)
			}
			return
		}
		c.ChatKey = chatKey
		if b.logger != nil {
			b.logger.Printf("[Capture] completion | chat=%s chars=%d aborted=%t", chatKey, len(c.Text), c.Aborted)
		}
		if b.sink != nil {
			b.sink(c)
		}
	}
}

// markFinished records key as closed and forgets expired records. b.mu must
// be held.
func (b *Bridge) markFinished(key sessionKey) {
	now := b.now()
	for k, at := range b.finished {
		if now.Sub(at) > finishedTTL {
			delete(b.finished, k)
		}
	}
	b.finished[key] = now
}

// Drop forgets every open capture of a chat tab.
func (b *Bridge) Drop(chatKey string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.sessions {
		if k.chatKey == chatKey {
			delete(b.sessions, k)
		}
	}
	for k := range b.finished {
		if k.chatKey == chatKey {
			delete(b.finished, k)
		}
	}
}

func (b *Bridge) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
