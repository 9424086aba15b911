// Package executor applies a single action to a single surface element.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/surface"
)

// Highlight windows before an action runs.
const (
	ScrollHighlight  = 3000 * time.Millisecond
	DefaultHighlight = 2000 * time.Millisecond
)

// Highlighter gives transient visual feedback on an element. Calls are fire and
// forget; implementations must not block.
type Highlighter interface {
	Highlight(ctx context.Context, el surface.Element, d time.Duration)
}

type HighlighterFunc func(ctx context.Context, el surface.Element, d time.Duration)

func (f HighlighterFunc) Highlight(ctx context.Context, el surface.Element, d time.Duration) {
	f(ctx, el, d)
}

// RatePolicy picks which of a rating widget's controls to activate.
type RatePolicy interface {
	Choose(ctx context.Context, controls []surface.Element) surface.Element
}

type RatePolicyFunc func(ctx context.Context, controls []surface.Element) surface.Element

func (f RatePolicyFunc) Choose(ctx context.Context, controls []surface.Element) surface.Element {
	return f(ctx, controls)
}

// HighestRating assumes controls are ordered lowest to highest and picks the last.
var HighestRating RatePolicy = RatePolicyFunc(func(_ context.Context, controls []surface.Element) surface.Element {
	if len(controls) == 0 {
		return nil
	}
	return controls[len(controls)-1]
})

// Executor performs actions. The zero value is usable: no highlight, the
// HighestRating policy, a real sleep and a disabled logger.
type Executor struct {
	Highlighter Highlighter
	Rate        RatePolicy
	Logger      zerolog.Logger
	Sleep       func(ctx context.Context, d time.Duration)
}

// Apply runs action against el and reports success. Failures never escape as
// errors or panics.
func (e Executor) Apply(ctx context.Context, el surface.Element, action domain.Action) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error().Interface("panic", r).Msg("action panicked")
			ok = false
		}
	}()
	if action == nil {
		return false
	}
	log := e.Logger.With().Str("action", string(action.Kind())).Logger()
	if el == nil {
		log.Debug().Msg("no target element")
		return false
	}
	if e.Highlighter != nil && touchesElement(action) {
		d := DefaultHighlight
		if action.Kind() == domain.KindScroll {
			d = ScrollHighlight
		}
		e.Highlighter.Highlight(ctx, el, d)
	}
	v := &visitor{ctx: ctx, el: el, e: e, log: log}
	ok = action.Accept(v)
	if v.err != nil {
		log.Debug().Err(v.err).Msg("action failed")
	}
	return ok
}

func touchesElement(a domain.Action) bool {
	switch a.(type) {
	case domain.Wait, domain.Custom:
		return false
	}
	return true
}

func (e Executor) sleep(ctx context.Context, d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}
	Sleep(ctx, d)
}

func (e Executor) rate() RatePolicy {
	if e.Rate != nil {
		return e.Rate
	}
	return HighestRating
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// displayNone reports an inline display:none declaration.
func displayNone(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), "display") && strings.EqualFold(strings.TrimSpace(v), "none") {
			return true
		}
	}
	return false
}
