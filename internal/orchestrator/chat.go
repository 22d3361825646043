package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobpilot/internal/capture"
	"jobpilot/internal/chatdriver"
	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/store"
	"jobpilot/internal/ws"
)

// runChat drives the chat tab and arms the completion watch as soon as the
// submission is acknowledged. A failure after that point leaves the watch
// armed: the captured stream or the timeout still finishes the run.
func (o *Orchestrator) runChat(tabID string, out analysis.Outcome, promptText string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ChatTimeout)
	defer cancel()

	loc := o.d.Driver.Locators()
	chatURL := strings.TrimSpace(o.opts.ChatURL)
	if chatURL == "" {
		chatURL = loc.URL
	}

	page, err := o.d.Chats.Open(ctx, tabID, chatURL)
	if err != nil {
		o.chatFailed(ctx, tabID, err)
		return
	}
	chatKey := page.Key()
	req := chatdriver.Request{ID: uuid.NewString(), Prompt: promptText, Model: o.opts.Model, Modes: o.opts.Modes}
	o.logf("[Orchestrator] chat run started | tab=%s chat=%s req=%s host=%s", tabID, chatKey, req.ID, loc.Name)

	watched := false
	for u := range o.d.Driver.Start(ctx, page, req) {
		if u.Result == nil {
			if u.State == chatdriver.StateSent && !watched {
				watched = true
				o.watch(ctx, tabID, chatKey, out)
			}
			continue
		}
		res := *u.Result
		o.d.Metrics.ChatRun(string(res.State), res.SettledVia)
		if !res.OK {
			o.chatFailed(ctx, tabID, res.Err)
			return
		}
		link, err := o.d.Chats.CurrentURL(ctx, chatKey)
		if err != nil {
			o.logf("[Orchestrator] chat url lookup failed | chat=%s err=%v", chatKey, err)
		}
		if _, err := o.complete(ctx, chatKey, SourceDOM, res.Text, link); err != nil {
			o.chatFailed(ctx, tabID, err)
		}
	}
}

func (o *Orchestrator) chatFailed(ctx context.Context, tabID string, err error) {
	o.logf("[Orchestrator] chat failed | tab=%s err=%v", tabID, err)
	o.updateTab(ctx, tabID, func(st *store.TabState) {
		st.Error = err.Error()
	})
	o.notify(tabID, ws.EventChatFailed, map[string]any{"error": err.Error()})
}

// watch records the pending submission and arms the hard timeout.
func (o *Orchestrator) watch(ctx context.Context, tabID, chatKey string, out analysis.Outcome) {
	st := store.PollState{
		ChatKey:   chatKey,
		TabID:     tabID,
		StartedAt: o.now().UTC(),
		JobTitle:  out.Job.Title,
		Company:   out.Job.Company,
	}
	if err := o.d.Polls.Put(ctx, st); err != nil {
		o.logf("[Orchestrator] poll state not stored, guarding in process | chat=%s err=%v", chatKey, err)
		o.unstored.Store(chatKey, st)
	} else {
		o.unstored.Delete(chatKey)
	}
	o.updateTab(ctx, tabID, func(ts *store.TabState) {
		ts.Phase = store.PhaseChatSubmitted
		ts.ChatKey = chatKey
	})

	timer := o.afterFunc(o.opts.CompletionTimeout, func() {
		o.runTracked("timeout", func() { o.onTimeout(tabID, chatKey) })
	})
	o.mu.Lock()
	if old, ok := o.timers[chatKey]; ok {
		old.Stop()
	}
	o.timers[chatKey] = timer
	o.mu.Unlock()

	o.notify(tabID, ws.EventChatSubmitted, map[string]any{"chatKey": chatKey})
}

// HandleCompletion is the capture path. It reports whether this call won
// the race for chatKey.
func (o *Orchestrator) HandleCompletion(c capture.Completion) bool {
	won, _ := o.complete(context.Background(), c.ChatKey, SourceCapture, c.Text, c.SessionURL)
	return won
}

func (o *Orchestrator) onTimeout(tabID, chatKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PDFTimeout+30*time.Second)
	defer cancel()
	st, ok, err := o.claim(ctx, chatKey, SourceTimeout)
	if err != nil {
		o.chatFailed(ctx, tabID, err)
		return
	}
	if !ok {
		return
	}
	link, err := o.d.Chats.CurrentURL(ctx, chatKey)
	if err != nil {
		o.logf("[Orchestrator] chat url lookup failed | chat=%s err=%v", chatKey, err)
	}
	o.finish(ctx, st, SourceTimeout, "", link)
}

func (o *Orchestrator) complete(ctx context.Context, chatKey, source, text, link string) (bool, error) {
	st, ok, err := o.claim(ctx, chatKey, source)
	if !ok {
		return false, err
	}
	o.goSafe("finish", func() {
		fctx, cancel := context.WithTimeout(context.Background(), o.opts.PDFTimeout+30*time.Second)
		defer cancel()
		o.finish(fctx, st, source, text, link)
	})
	return true, nil
}

// claim removes the poll state. Removal is the lock: of all paths racing
// for chatKey only the one that removed it proceeds. A state the store
// refused at submit time is claimed from process memory instead.
func (o *Orchestrator) claim(ctx context.Context, chatKey, source string) (store.PollState, bool, error) {
	if chatKey == "" {
		return store.PollState{}, false, nil
	}
	var st store.PollState
	if v, held := o.unstored.LoadAndDelete(chatKey); held {
		st = v.(store.PollState)
	} else {
		taken, ok, err := o.d.Polls.Take(ctx, chatKey)
		if err != nil {
			o.logf("[Orchestrator] poll state take failed | chat=%s source=%s err=%v", chatKey, source, err)
			return store.PollState{}, false, fmt.Errorf("%w: %v", ErrCompletionGuard, err)
		}
		if !ok {
			o.logf("[Orchestrator] completion ignored | chat=%s source=%s reason=already_handled", chatKey, source)
			return store.PollState{}, false, nil
		}
		st = taken
	}
	o.stopTimer(chatKey)
	o.d.Metrics.Completion(source)
	o.logf("[Orchestrator] completion won | chat=%s source=%s", chatKey, source)
	return st, true, nil
}

func (o *Orchestrator) stopTimer(chatKey string) {
	o.mu.Lock()
	t, ok := o.timers[chatKey]
	delete(o.timers, chatKey)
	o.mu.Unlock()
	if ok {
		t.Stop()
	}
}
