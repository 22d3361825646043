package chatdriver

import (
	"context"
	"time"
)

// CountOp is the comparison WaitCount waits for.
type CountOp int

const (
	AtLeast CountOp = iota
	AtMost
)

func (op CountOp) Holds(count, n int) bool {
	if op == AtMost {
		return count <= n
	}
	return count >= n
}

// Page is the narrow DOM surface the driver needs from a chat tab. Every
// selector comes from a Locators value; the driver never builds its own.
type Page interface {
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first match whose visible label equals text.
	ClickText(ctx context.Context, selector, text string) (bool, error)
	// AttrText reads attr from the first match whose label equals text.
	AttrText(ctx context.Context, selector, text, attr string) (string, bool, error)
	// Text reads the last match from a detached clone with strip removed.
	Text(ctx context.Context, selector string, strip []string) (string, error)
	ClearInput(ctx context.Context, selector string) error
	Paste(ctx context.Context, selector, text string) error
	SetText(ctx context.Context, selector, text string) error
	InputLength(ctx context.Context, selector string) (int, error)
	// PressKey dispatches key to selector, or to the document when empty.
	PressKey(ctx context.Context, selector, key string) error
	// WaitCount blocks on DOM mutations until op holds or timeout elapses.
	WaitCount(ctx context.Context, selector string, op CountOp, n int, timeout time.Duration) (bool, error)
}
