// Package capture reconstructs a chat model's streamed answer from the raw
// server-sent events the in-page hook forwards.
package capture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// MinAbortedChars is the shortest aborted capture still worth reporting.
const MinAbortedChars = 100

// Completion is the signal emitted once a stream ends with usable text.
type Completion struct {
	ChatKey    string `json:"chatKey,omitempty"`
	SessionURL string `json:"url"`
	Text       string `json:"text"`
	Aborted    bool   `json:"aborted"`
}

// Session buffers one intercepted response body.
type Session struct {
	mu         sync.Mutex
	url        string
	buf        bytes.Buffer
	finished   bool
	minAborted int
}

func NewSession(url string) *Session {
	return &Session{url: url, minAborted: MinAbortedChars}
}

func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return len(p), nil
	}
	return s.buf.Write(p)
}

func (s *Session) SetURL(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
}

// Finish decodes the buffered stream. It reports ok only the first time it is
// called and only when the reconstructed text qualifies: any text on a normal
// end, more than MinAbortedChars after an abort.
func (s *Session) Finish(aborted bool) (Completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return Completion{}, false
	}
	s.finished = true

	if s.buf.Len() == 0 {
		return Completion{}, false
	}
	text := ReconstructText(bytes.NewReader(s.buf.Bytes()))
	s.buf.Reset()

	n := utf8.RuneCountInString(text)
	if n == 0 || (aborted && n <= s.minAborted) {
		return Completion{}, false
	}
	return Completion{SessionURL: s.url, Text: text, Aborted: aborted}, true
}

type sseEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// ReconstructText concatenates every text_delta fragment of an SSE stream in
// arrival order. Lines that are not data events or do not decode are skipped.
func ReconstructText(r io.Reader) string {
	var out strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if ev.Delta != nil && ev.Delta.Type == "text_delta" {
			out.WriteString(ev.Delta.Text)
		}
	}
	return out.String()
}
