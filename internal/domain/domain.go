package domain

import (
	"time"

	"github.com/google/uuid"
)

// SurfaceElement is a snapshot of one interactive element taken at discovery time.
// JSON names follow the inventory wire format sent to the planner.
type SurfaceElement struct {
	Tag          string `json:"tagName"`
	ID           string `json:"id,omitempty"`
	ClassName    string `json:"className,omitempty"`
	Role         string `json:"role,omitempty"`
	AriaLabel    string `json:"ariaLabel,omitempty"`
	Text         string `json:"textContent,omitempty"`
	Type         string `json:"type,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	Value        string `json:"value,omitempty"`
	Href         string `json:"href,omitempty"`
	Voice        string `json:"dataVoice,omitempty"`
	VoiceIntents string `json:"dataVoiceIntents,omitempty"`
	VoiceAction  string `json:"dataVoiceAction,omitempty"`
	Locator      string `json:"path"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Path tags which resolution path produced an outcome.
type Path string

const (
	PathStatic Path = "static"
	PathAI     Path = "ai"
	PathError  Path = "error"
)

// StepOutcome records the executor result for one plan step.
type StepOutcome struct {
	Index int        `json:"index"`
	Step  ActionStep `json:"step"`
	OK    bool       `json:"ok"`
}

// Outcome is the normalized terminal record of one utterance.
type Outcome struct {
	ID      string        `json:"id"`
	Command string        `json:"command"`
	Result  string        `json:"result"`
	Status  Status        `json:"status" enum:"success,error,pending"`
	Path    Path          `json:"processingType" enum:"static,ai,error"`
	Matched string        `json:"matched,omitempty"`
	Plan    *ActionPlan   `json:"aiPlan,omitempty"`
	Steps   []StepOutcome `json:"steps,omitempty"`
	At      time.Time     `json:"at" format:"date-time"`

	// Err classifies failures; see errors.go.
	Err error `json:"-"`
}

func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Observer receives every terminal outcome. Implementations must not block.
type Observer interface {
	Observe(Outcome)
}

type ObserverFunc func(Outcome)

func (f ObserverFunc) Observe(o Outcome) { f(o) }

// NopObserver discards outcomes.
var NopObserver Observer = ObserverFunc(func(Outcome) {})

// NewOutcome starts an outcome record for command.
func NewOutcome(command string, now time.Time) Outcome {
	return Outcome{
		ID:      uuid.NewString(),
		Command: command,
		Status:  StatusPending,
		At:      now.UTC(),
	}
}

// Fail marks o failed with result text and a classifying error.
func (o Outcome) Fail(path Path, result string, err error) Outcome {
	o.Path = path
	o.Status = StatusError
	o.Result = result
	o.Err = err
	return o
}

// Succeed marks o successful.
func (o Outcome) Succeed(path Path, result string) Outcome {
	o.Path = path
	o.Status = StatusSuccess
	o.Result = result
	o.Err = nil
	return o
}
