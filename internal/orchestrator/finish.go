package orchestrator

import (
	"context"
	"strings"
	"time"

	"jobpilot/internal/infrastructure/pdfhost"
	"jobpilot/internal/infrastructure/tracking"
	"jobpilot/internal/store"
	"jobpilot/internal/ws"
)

// finish runs once per watch, after claim.
func (o *Orchestrator) finish(ctx context.Context, st store.PollState, source, text, link string) {
	elapsed := o.now().Sub(st.StartedAt)
	text = strings.TrimSpace(text)

	o.updateTab(ctx, st.TabID, func(ts *store.TabState) {
		ts.Phase = store.PhaseResponded
		ts.ResponseText = text
		ts.ResponseLink = link
	})
	o.notify(st.TabID, ws.EventResponseComplete, map[string]any{
		"link":      link,
		"text":      text,
		"source":    source,
		"timedOut":  source == SourceTimeout,
		"elapsedMs": elapsed.Milliseconds(),
	})

	trackingID := o.trackingResolver(st.TabID)
	o.d.Tracker.Update(trackingID, tracking.Patch{
		"status":          tracking.StatusChatResponded,
		"chat_response":   text,
		"chat_link":       link,
		"chat_elapsed_ms": elapsed.Milliseconds(),
	}, tracking.EventChatResponse, map[string]any{"source": source, "chars": len(text)})

	if text == "" || o.d.PDF == nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, o.opts.PDFTimeout)
	defer cancel()
	resp, err := o.d.PDF.Generate(pctx, pdfhost.Request{
		ResponseText: text,
		ChatTitle:    pdfhost.DisplayTitle(st.JobTitle, st.Company),
	})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		o.d.Metrics.PDF("failed")
		o.logf("[Orchestrator] pdf failed | tab=%s err=%v", st.TabID, err)
		o.updateTab(ctx, st.TabID, func(ts *store.TabState) { ts.Error = err.Error() })
		o.notify(st.TabID, ws.EventPDFFailed, map[string]any{"error": err.Error()})
		return
	}
	o.d.Metrics.PDF("ok")
	o.pdfReady(ctx, st, trackingID, text, resp)
}

func (o *Orchestrator) pdfReady(ctx context.Context, st store.PollState, trackingID tracking.IDFunc, text string, resp pdfhost.Response) {
	info := store.PDFInfo{Path: resp.PDFPath, FolderName: resp.FolderName, SizeBytes: resp.PDFSizeBytes}
	o.updateTab(ctx, st.TabID, func(ts *store.TabState) {
		ts.Phase = store.PhasePDFReady
		ts.PDF = &info
		ts.Error = ""
	})
	o.notify(st.TabID, ws.EventPDFReady, map[string]any{
		"pdfPath":    resp.PDFPath,
		"folderName": resp.FolderName,
		"sizeBytes":  resp.PDFSizeBytes,
	})

	title := pdfhost.DisplayTitle(st.JobTitle, st.Company)
	msg := "Resume generated"
	if title != "" {
		msg += " for " + title
	}
	o.notify(st.TabID, ws.EventDesktopNotification, map[string]any{
		"title":   "Resume ready",
		"message": msg,
		"link":    "file://" + resp.PDFPath,
	})

	source := resp.LatexSource
	if source == "" {
		source = text
	}
	o.d.Tracker.Update(trackingID, tracking.Patch{
		"status":            tracking.StatusResumeReady,
		"resume_source":     source,
		"resume_pdf_base64": resp.PDFBase64,
		"resume_size_bytes": resp.PDFSizeBytes,
		"resume_folder":     resp.FolderName,
		"resume_path":       resp.PDFPath,
	}, tracking.EventResumeCreated, map[string]any{"folder": resp.FolderName, "size": resp.PDFSizeBytes})
}

// trackingResolver reads the tab's tracking id when the queued call runs,
// so a create still in flight is seen.
func (o *Orchestrator) trackingResolver(tabID string) tracking.IDFunc {
	return func() string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		id, ok, err := o.d.Sessions.TrackingID(ctx, tabID)
		if err != nil {
			o.logf("[Orchestrator] tracking id read failed | tab=%s err=%v", tabID, err)
			return ""
		}
		if !ok {
			return ""
		}
		return id
	}
}
