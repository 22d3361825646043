package ws

import (
	"encoding/json"
	"time"
)

// Notification types pushed to the originating tab.
const (
	EventExtractionFailed    = "extraction_failed"
	EventAnalysisReady       = "analysis_ready"
	EventAnalysisFailed      = "analysis_failed"
	EventChatSubmitted       = "chat_submitted"
	EventChatFailed          = "chat_failed"
	EventResponseComplete    = "response_complete"
	EventPDFReady            = "pdf_ready"
	EventPDFFailed           = "pdf_failed"
	EventDesktopNotification = "desktop_notification"
)

type Event struct {
	Type      string `json:"type"`
	TabID     string `json:"tabId"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Notify sends a one-shot event to every client of tabID. Nobody listening
// is not an error.
func (h *Hub) Notify(tabID, eventType string, data any) {
	if h == nil || tabID == "" {
		return
	}
	b, err := json.Marshal(Event{
		Type:      eventType,
		TabID:     tabID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("WS notify encode failed | tab=%s type=%s err=%v", tabID, eventType, err)
		}
		return
	}
	h.Broadcast(tabID, b)
}
