package store

import (
	"context"
	"time"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
)

const tabTTL = 24 * time.Hour

type Phase string

const (
	PhaseExtracted     Phase = "extracted"
	PhaseAnalyzed      Phase = "analyzed"
	PhaseChatSubmitted Phase = "chat_submitted"
	PhaseResponded     Phase = "responded"
	PhasePDFReady      Phase = "pdf_ready"
	PhaseFailed        Phase = "failed"
)

type PDFInfo struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
}

// TabState is everything remembered for one originating tab. It is cleared
// when the tab closes.
type TabState struct {
	TabID        string                `json:"tabId"`
	Phase        Phase                 `json:"phase"`
	Extraction   *job.ExtractionResult `json:"extraction,omitempty"`
	Outcome      *analysis.Outcome     `json:"outcome,omitempty"`
	Prompt       string                `json:"prompt,omitempty"`
	ChatKey      string                `json:"chatKey,omitempty"`
	ResponseText string                `json:"responseText,omitempty"`
	ResponseLink string                `json:"responseLink,omitempty"`
	PDF          *PDFInfo              `json:"pdf,omitempty"`
	Error        string                `json:"error,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

type TabStore struct {
	kv    KV
	now   func() time.Time
	locks keyedMutex
}

func NewTabStore(kv KV) *TabStore {
	return &TabStore{kv: kv, now: time.Now}
}

func tabKey(tabID string) string { return "tab:" + tabID }

func (s *TabStore) Get(ctx context.Context, tabID string) (TabState, bool, error) {
	var st TabState
	ok, err := s.kv.GetJSON(ctx, tabKey(tabID), &st)
	return st, ok, err
}

// Update is a single-key read-modify-write. Updates of one tab are
// serialized within the process; the service is the only writer.
func (s *TabStore) Update(ctx context.Context, tabID string, fn func(*TabState)) (TabState, error) {
	unlock := s.locks.lock(tabID)
	defer unlock()

	st, _, err := s.Get(ctx, tabID)
	if err != nil {
		return TabState{}, err
	}
	st.TabID = tabID
	fn(&st)
	st.UpdatedAt = s.now().UTC()
	if err := s.kv.SetJSON(ctx, tabKey(tabID), st, tabTTL); err != nil {
		return TabState{}, err
	}
	return st, nil
}

func (s *TabStore) Clear(ctx context.Context, tabID string) error {
	return s.kv.Delete(ctx, tabKey(tabID))
}
