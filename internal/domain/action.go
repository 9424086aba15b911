package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind names an action on the wire (plan steps, data-voice-action attributes).
type Kind string

const (
	KindClick  Kind = "click"
	KindType   Kind = "type"
	KindSelect Kind = "select"
	KindFocus  Kind = "focus"
	KindScroll Kind = "scroll"
	KindWait   Kind = "wait"
	KindCustom Kind = "custom"
	KindShow   Kind = "show"
	KindHide   Kind = "hide"
	KindToggle Kind = "toggle"
	KindRate   Kind = "rate"
)

// PlanKinds is the closed step vocabulary a planner may return.
var PlanKinds = []Kind{KindClick, KindType, KindSelect, KindFocus, KindScroll, KindWait, KindCustom}

// StaticKinds are the kinds an element may declare for the deterministic path.
var StaticKinds = []Kind{KindClick, KindShow, KindHide, KindToggle, KindScroll, KindSelect, KindFocus, KindRate}

// DefaultWait applies to wait steps whose value is absent or not a number.
const DefaultWait = 1000 * time.Millisecond

// MaxWait caps a single wait step.
const MaxWait = 60 * time.Second

// Action is a closed sum type: one struct per kind. Consumers dispatch through
// Visitor, so adding a kind breaks every implementation until it is handled.
type Action interface {
	Kind() Kind
	Accept(v Visitor) bool
}

// Visitor handles every Action case and reports success.
type Visitor interface {
	VisitClick(Click) bool
	VisitType(Type) bool
	VisitSelect(Select) bool
	VisitFocus(Focus) bool
	VisitScroll(Scroll) bool
	VisitWait(Wait) bool
	VisitCustom(Custom) bool
	VisitShow(Show) bool
	VisitHide(Hide) bool
	VisitToggle(Toggle) bool
	VisitRate(Rate) bool
}

type Click struct{}

// Type replaces the text of an editable target.
type Type struct{ Text string }

// Select chooses Option on a selection control. An empty Option picks the
// first option with a non-empty value.
type Select struct{ Option string }

type Focus struct{}

type Scroll struct{}

type Wait struct{ Duration time.Duration }

// Custom has no surface effect; Description is only logged.
type Custom struct{ Description string }

type Show struct{}

type Hide struct{}

type Toggle struct{}

// Rate activates a rating control chosen by the executor's rate policy.
type Rate struct{}

func (Click) Kind() Kind  { return KindClick }
func (Type) Kind() Kind   { return KindType }
func (Select) Kind() Kind { return KindSelect }
func (Focus) Kind() Kind  { return KindFocus }
func (Scroll) Kind() Kind { return KindScroll }
func (Wait) Kind() Kind   { return KindWait }
func (Custom) Kind() Kind { return KindCustom }
func (Show) Kind() Kind   { return KindShow }
func (Hide) Kind() Kind   { return KindHide }
func (Toggle) Kind() Kind { return KindToggle }
func (Rate) Kind() Kind   { return KindRate }

func (a Click) Accept(v Visitor) bool  { return v.VisitClick(a) }
func (a Type) Accept(v Visitor) bool   { return v.VisitType(a) }
func (a Select) Accept(v Visitor) bool { return v.VisitSelect(a) }
func (a Focus) Accept(v Visitor) bool  { return v.VisitFocus(a) }
func (a Scroll) Accept(v Visitor) bool { return v.VisitScroll(a) }
func (a Wait) Accept(v Visitor) bool   { return v.VisitWait(a) }
func (a Custom) Accept(v Visitor) bool { return v.VisitCustom(a) }
func (a Show) Accept(v Visitor) bool   { return v.VisitShow(a) }
func (a Hide) Accept(v Visitor) bool   { return v.VisitHide(a) }
func (a Toggle) Accept(v Visitor) bool { return v.VisitToggle(a) }
func (a Rate) Accept(v Visitor) bool   { return v.VisitRate(a) }

// StaticAction builds the action an element declares for the deterministic path.
// An empty kind means click.
func StaticAction(kind Kind) (Action, error) {
	switch kind {
	case "", KindClick:
		return Click{}, nil
	case KindShow:
		return Show{}, nil
	case KindHide:
		return Hide{}, nil
	case KindToggle:
		return Toggle{}, nil
	case KindScroll:
		return Scroll{}, nil
	case KindSelect:
		return Select{}, nil
	case KindFocus:
		return Focus{}, nil
	case KindRate:
		return Rate{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
}

// StepAction builds the action for a plan step.
func StepAction(step ActionStep) (Action, error) {
	switch step.Kind {
	case KindClick:
		return Click{}, nil
	case KindType:
		return Type{Text: step.Value}, nil
	case KindSelect:
		return Select{Option: step.Value}, nil
	case KindFocus:
		return Focus{}, nil
	case KindScroll:
		return Scroll{}, nil
	case KindWait:
		return Wait{Duration: ParseWait(step.Value)}, nil
	case KindCustom:
		return Custom{Description: step.Description}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, step.Kind)
}

var leadingInt = regexp.MustCompile(`^\s*[+-]?\d+`)

// ParseWait reads a millisecond count from the leading digits of v
// ("250", "250ms"). Absent or non-numeric values yield DefaultWait; negative
// values yield zero and values above MaxWait are clamped to it.
func ParseWait(v string) time.Duration {
	m := strings.TrimSpace(leadingInt.FindString(v))
	if m == "" {
		return DefaultWait
	}
	ms, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		// Only range errors remain once the regexp matched.
		if strings.HasPrefix(m, "-") {
			return 0
		}
		return MaxWait
	}
	switch {
	case ms < 0:
		return 0
	case ms > MaxWait.Milliseconds():
		return MaxWait
	}
	return time.Duration(ms) * time.Millisecond
}

func isPlanKind(k Kind) bool {
	for _, pk := range PlanKinds {
		if pk == k {
			return true
		}
	}
	return false
}
