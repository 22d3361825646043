package ws

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
)

func waitClients(t *testing.T, h *Hub, tab string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount(tab) != n {
		if time.Now().After(deadline) {
			t.Fatalf("tab %s: want %d clients, have %d", tab, n, h.ClientCount(tab))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_NotifyReachesOnlyThatTab(t *testing.T) {
	h := NewHub(nil)
	done := make(chan struct{})
	defer close(done)
	go h.Run(done)

	a := &Client{hub: h, tabID: "1", send: make(chan []byte, 4)}
	b := &Client{hub: h, tabID: "2", send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)
	waitClients(t, h, "1", 1)
	waitClients(t, h, "2", 1)

	h.Notify("1", EventAnalysisReady, map[string]int{"fit_score": 83})

	select {
	case msg := <-a.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if ev.Type != EventAnalysisReady || ev.TabID != "1" || ev.Timestamp == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tab 1 got nothing")
	}
	select {
	case msg := <-b.send:
		t.Fatalf("tab 2 must not receive %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	h.Unregister(a)
	waitClients(t, h, "1", 0)
	if _, open := <-a.send; open {
		t.Fatalf("send channel must be closed on unregister")
	}
}

func TestHub_NilSafe(t *testing.T) {
	var h *Hub
	h.Notify("1", EventPDFReady, nil)
	h.Broadcast("1", nil)
	if h.ClientCount("1") != 0 {
		t.Fatalf("nil hub has no clients")
	}
}

func TestHandleTabWS_Validation(t *testing.T) {
	h := NewHandler(NewHub(nil), func(token string) error {
		if token != "good" {
			return errors.New("bad token")
		}
		return nil
	}, nil)
	app := fiber.New()
	app.Get("/ws", h.HandleTabWS)

	cases := []struct {
		target string
		want   int
	}{
		{"/ws", fiber.StatusBadRequest},
		{"/ws?tab=7&token=bad", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.target, nil))
		if err != nil {
			t.Fatalf("%s: %v", tc.target, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.target, resp.StatusCode, tc.want)
		}
	}
}
