package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/executor"
	"voiceui/internal/matcher"
	"voiceui/internal/pipeline"
	"voiceui/internal/planner"
	"voiceui/internal/surface"
	"voiceui/internal/transcribe"
)

// Mode selects the resolution path for an utterance.
type Mode string

const (
	ModeStatic Mode = "static"
	ModeAI     Mode = "ai"
	ModeAuto   Mode = "auto"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeStatic, ModeAI, ModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want static, ai or auto)", s)
}

// Result strings for outcomes produced by the engine itself.
const (
	ResultEmpty         = "empty transcript"
	ResultNoPlanner     = "AI planner not configured"
	ResultTranscription = "Failed to transcribe audio"
)

// Engine decides, per utterance, which resolution path runs and makes sure
// every terminal outcome reaches the observer exactly once.
type Engine struct {
	Matcher     matcher.Matcher
	Pipeline    pipeline.Pipeline
	Transcriber transcribe.Transcriber
	Observer    domain.Observer
	Mode        Mode
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Options configure New.
type Options struct {
	Planner     planner.Planner
	Transcriber transcribe.Transcriber
	Executor    executor.Executor
	Observer    domain.Observer
	Mode        Mode
	Logger      zerolog.Logger
	OnStep      pipeline.StepFunc
}

func New(opts Options) Engine {
	obs := opts.Observer
	if obs == nil {
		obs = domain.NopObserver
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	return Engine{
		Matcher: matcher.Matcher{
			Executor: opts.Executor,
			Observer: obs,
			Logger:   opts.Logger.With().Str("component", "matcher").Logger(),
		},
		Pipeline: pipeline.Pipeline{
			Planner:  opts.Planner,
			Executor: opts.Executor,
			Observer: obs,
			OnStep:   opts.OnStep,
			Logger:   opts.Logger.With().Str("component", "pipeline").Logger(),
		},
		Transcriber: opts.Transcriber,
		Observer:    obs,
		Mode:        mode,
		Logger:      opts.Logger,
		Now:         time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) observe(o domain.Outcome) domain.Outcome {
	if e.Observer != nil {
		e.Observer.Observe(o)
	}
	return o
}

// Resolve picks the path for mode. Auto prefers the planner when one is configured.
func (e Engine) Resolve(mode Mode) Mode {
	if mode == "" {
		mode = e.Mode
	}
	if mode == ModeAuto || mode == "" {
		if e.Pipeline.Planner != nil {
			return ModeAI
		}
		return ModeStatic
	}
	return mode
}

// HandleTranscript resolves one utterance against s.
func (e Engine) HandleTranscript(ctx context.Context, s surface.Surface, transcript string, mode Mode) domain.Outcome {
	if strings.TrimSpace(transcript) == "" {
		return e.observe(domain.NewOutcome(transcript, e.now()).Fail(domain.PathError, ResultEmpty, domain.ErrEmptyCommand))
	}
	path := e.Resolve(mode)
	e.Logger.Info().Str("transcript", transcript).Str("mode", string(path)).Msg("voice command")
	switch path {
	case ModeAI:
		if e.Pipeline.Planner == nil {
			return e.observe(domain.NewOutcome(transcript, e.now()).Fail(domain.PathError, ResultNoPlanner, domain.ErrUpstream))
		}
		return e.Pipeline.Run(ctx, s, transcript)
	default:
		return e.Matcher.ResolveAndExecute(ctx, s, transcript)
	}
}

// HandleAudio transcribes audio and resolves the transcript. Transcription
// failures produce an error-path outcome.
func (e Engine) HandleAudio(ctx context.Context, s surface.Surface, audio []byte, filename, language string, mode Mode) domain.Outcome {
	if e.Transcriber == nil {
		return e.observe(domain.NewOutcome("", e.now()).Fail(domain.PathError, ResultTranscription, fmt.Errorf("%w: transcriber not configured", domain.ErrUpstream)))
	}
	text, err := e.Transcriber.Transcribe(ctx, audio, filename, language)
	if err != nil {
		e.Logger.Error().Err(err).Msg("transcription failed")
		if !errors.Is(err, domain.ErrUpstream) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		return e.observe(domain.NewOutcome("", e.now()).Fail(domain.PathError, ResultTranscription, err))
	}
	return e.HandleTranscript(ctx, s, text, mode)
}

// Bind returns a copy of e that reports outcomes to obs and plan progress to
// onStep. Nil arguments keep the current wiring.
func (e Engine) Bind(obs domain.Observer, onStep pipeline.StepFunc) Engine {
	if obs != nil {
		e.Observer = obs
		e.Matcher.Observer = obs
		e.Pipeline.Observer = obs
	}
	if onStep != nil {
		e.Pipeline.OnStep = onStep
	}
	return e
}
