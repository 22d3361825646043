package tracking

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	DefaultCallTimeout = 15 * time.Second
	queueSize          = 256
)

// IDFunc resolves the tracking id when the call actually runs, after every
// earlier call (including the create that produced the id) has finished.
type IDFunc func() string

// Recorder runs tracker calls on one background worker, in submission
// order. Failures are logged and dropped; nothing reaches the caller.
type Recorder struct {
	tracker Tracker
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time

	queue   chan func()
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(t Tracker, timeout time.Duration, logger *log.Logger) *Recorder {
	if t == nil {
		t = Noop{}
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	r := &Recorder{tracker: t, timeout: timeout, logger: logger, now: time.Now, queue: make(chan func(), queueSize)}
	go r.work()
	return r
}

func (r *Recorder) work() {
	for fn := range r.queue {
		fn()
	}
}

// Create stores the job and hands the new id to onID when one comes back.
func (r *Recorder) Create(j NewJob, onID func(id string)) {
	if r == nil {
		return
	}
	r.enqueue("create", func(ctx context.Context) error {
		id, err := r.tracker.CreateJob(ctx, j)
		if err != nil {
			return err
		}
		if id != "" && onID != nil {
			onID(id)
		}
		return nil
	})
}

// Update patches the job and appends an event. An empty id means the create
// call failed, so the update is skipped.
func (r *Recorder) Update(resolve IDFunc, p Patch, eventType string, eventData map[string]any) {
	if r == nil || resolve == nil {
		return
	}
	at := r.now()
	r.enqueue("patch", func(ctx context.Context) error {
		id := resolve()
		if id == "" {
			return nil
		}
		if len(p) > 0 {
			if err := r.tracker.PatchJob(ctx, id, p); err != nil {
				return err
			}
		}
		if eventType == "" {
			return nil
		}
		return r.tracker.AppendEvent(ctx, id, Event{Type: eventType, Data: eventData, At: at})
	})
}

// Wait blocks until every queued call has run.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.pending.Wait()
}

// Close stops the worker after the queue drains.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.pending.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

func (r *Recorder) enqueue(op string, fn func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.pending.Add(1)
	call := func() {
		defer r.pending.Done()
		defer func() {
			if rec := recover(); rec != nil && r.logger != nil {
				r.logger.Printf("[Tracking] panic | op=%s err=%v", op, rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := fn(ctx); err != nil && r.logger != nil {
			r.logger.Printf("[Tracking] call failed | op=%s err=%v", op, err)
		}
	}
	select {
	case r.queue <- call:
	default:
		r.pending.Done()
		if r.logger != nil {
			r.logger.Printf("[Tracking] queue full, call dropped | op=%s", op)
		}
	}
}
