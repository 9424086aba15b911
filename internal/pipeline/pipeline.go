// Package pipeline drives the planner path: discover the surface, ask the
// planner, gate on confidence, validate every target, then execute steps in
// order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/executor"
	"voiceui/internal/locator"
	"voiceui/internal/planner"
	"voiceui/internal/surface"
)

// SettleDelay follows every executed step.
const SettleDelay = 200 * time.Millisecond

// Result strings reported on outcomes.
const (
	ResultNoElements = "No interactive elements found on the page"
	ResultPartial    = "Some AI steps failed"
)

// Applier runs one action on one element.
type Applier interface {
	Apply(ctx context.Context, el surface.Element, action domain.Action) bool
}

// StepFunc observes each executed step.
type StepFunc func(index int, step domain.ActionStep, ok bool)

type Pipeline struct {
	Planner  planner.Planner
	Executor Applier
	Observer domain.Observer
	OnStep   StepFunc
	Logger   zerolog.Logger
	Now      func() time.Time
	// Sleep paces the settle delay; defaults to executor.Sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

func (p Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Pipeline) sleep(ctx context.Context, d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(ctx, d)
		return
	}
	executor.Sleep(ctx, d)
}

func (p Pipeline) observe(o domain.Outcome) domain.Outcome {
	if p.Observer != nil {
		p.Observer.Observe(o)
	}
	return o
}

// Run resolves transcript through the planner. Once step execution begins it
// is detached from ctx cancellation and runs to completion.
func (p Pipeline) Run(ctx context.Context, s surface.Surface, transcript string) domain.Outcome {
	o := domain.NewOutcome(transcript, p.now())

	inv, err := locator.Discover(ctx, s)
	if err != nil {
		p.Logger.Error().Err(err).Msg("discover surface")
		return p.observe(o.Fail(domain.PathError, err.Error(), err))
	}
	p.Logger.Debug().Int("elements", len(inv)).Str("query", transcript).Msg("surface inventory")
	if len(inv) == 0 {
		return p.observe(o.Fail(domain.PathAI, ResultNoElements, domain.ErrNoElements))
	}

	plan, upstreamErr := p.Planner.Plan(ctx, transcript, inv)
	if upstreamErr != nil {
		p.Logger.Warn().Err(upstreamErr).Msg("planner failed")
		plan = domain.FailedPlan("")
	}
	o.Plan = &plan
	p.Logger.Debug().Float64("confidence", plan.Confidence).Int("steps", len(plan.Steps)).Str("reasoning", plan.Reasoning).Msg("action plan")

	if !plan.Accepted() {
		cause := domain.ErrLowConfidence
		if upstreamErr != nil {
			cause = fmt.Errorf("%w: %w", domain.ErrLowConfidence, upstreamErr)
		}
		msg := fmt.Sprintf("Low confidence (%.0f%%): %s", plan.Confidence*100, plan.Reasoning)
		return p.observe(o.Fail(domain.PathAI, msg, cause))
	}

	if missing := p.missingTargets(ctx, s, plan.Steps); len(missing) > 0 {
		p.Logger.Warn().Strs("targets", missing).Msg("plan targets not found")
		msg := "Elements not found: " + strings.Join(missing, ", ")
		return p.observe(o.Fail(domain.PathAI, msg, fmt.Errorf("%w: %s", domain.ErrMissingTarget, strings.Join(missing, ", "))))
	}

	o.Steps = p.execute(context.WithoutCancel(ctx), s, plan.Steps)
	for _, st := range o.Steps {
		if !st.OK {
			return p.observe(o.Fail(domain.PathAI, ResultPartial, fmt.Errorf("%w: step %d (%s %s)", domain.ErrStepFailed, st.Index, st.Step.Kind, st.Step.Target)))
		}
	}
	return p.observe(o.Succeed(domain.PathAI, fmt.Sprintf("AI executed %d steps", len(plan.Steps))))
}

// missingTargets lists, in step order, every target that does not resolve.
func (p Pipeline) missingTargets(ctx context.Context, s surface.Surface, steps []domain.ActionStep) []string {
	var missing []string
	for _, step := range steps {
		el, err := s.Query(ctx, step.Target)
		if err != nil || el == nil {
			missing = append(missing, step.Target)
		}
	}
	return missing
}

func (p Pipeline) execute(ctx context.Context, s surface.Surface, steps []domain.ActionStep) []domain.StepOutcome {
	out := make([]domain.StepOutcome, 0, len(steps))
	for i, step := range steps {
		ok, err := p.step(ctx, s, step)
		ev := p.Logger.Debug()
		if !ok {
			ev = p.Logger.Warn().Err(err)
		}
		ev.Int("step", i).Str("kind", string(step.Kind)).Str("target", step.Target).Bool("ok", ok).Msg(step.Description)
		out = append(out, domain.StepOutcome{Index: i, Step: step, OK: ok})
		if p.OnStep != nil {
			p.OnStep(i, step, ok)
		}
		p.sleep(ctx, SettleDelay)
	}
	return out
}

// step re-resolves the target, since earlier steps may have changed the surface.
func (p Pipeline) step(ctx context.Context, s surface.Surface, step domain.ActionStep) (bool, error) {
	action, err := domain.StepAction(step)
	if err != nil {
		return false, err
	}
	el, err := s.Query(ctx, step.Target)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, errors.New("target vanished")
	}
	return p.Executor.Apply(ctx, el, action), nil
}
