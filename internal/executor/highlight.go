package executor

import (
	"context"
	"sync"
	"time"

	"voiceui/internal/surface"
)

// DefaultOutlineStyle is the highlight applied when Outline.Style is empty.
const DefaultOutlineStyle = "3px solid #3b82f6"

// Outline highlights an element with an inline outline and puts the element's
// previous outline back once the window elapses. Use a pointer; Flush ends
// every pending highlight at once.
type Outline struct {
	Style string

	mu      sync.Mutex
	pending map[*int]func()
}

func (o *Outline) Highlight(ctx context.Context, el surface.Element, d time.Duration) {
	style := o.Style
	if style == "" {
		style = DefaultOutlineStyle
	}
	prev := ""
	if desc, err := el.Describe(ctx); err == nil {
		prev = desc.InlineStyle("outline")
	}
	if prev == style {
		// Already highlighted by an overlapping call; that call restores.
		return
	}
	if err := el.SetStyle(ctx, "outline", style); err != nil {
		return
	}
	key := new(int)
	o.mu.Lock()
	if o.pending == nil {
		o.pending = make(map[*int]func())
	}
	o.pending[key] = func() { _ = el.SetStyle(context.Background(), "outline", prev) }
	o.mu.Unlock()
	time.AfterFunc(d, func() { o.restore(key) })
}

func (o *Outline) restore(key *int) {
	o.mu.Lock()
	fn, ok := o.pending[key]
	delete(o.pending, key)
	o.mu.Unlock()
	if ok {
		fn()
	}
}

// Flush restores every element that is still highlighted.
func (o *Outline) Flush() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.pending))
	for k, fn := range o.pending {
		fns = append(fns, fn)
		delete(o.pending, k)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Pending reports how many highlights are still active.
func (o *Outline) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
