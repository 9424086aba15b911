// Package matcher resolves a transcript against declared element intents
// without any external dependency.
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/surface"
)

// Result strings reported on outcomes.
const (
	ResultNoMatch = "No matching elements found"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Match is one candidate element for a transcript.
type Match struct {
	Element    surface.Element
	Action     domain.Kind
	Confidence float64
	// Phrase is the declared phrase that matched, as written on the element.
	Phrase string
	// Voice is the element's primary phrase.
	Voice string
}

// Applier runs one action on one element.
type Applier interface {
	Apply(ctx context.Context, el surface.Element, action domain.Action) bool
}

// Matcher is the deterministic resolution path.
type Matcher struct {
	Executor Applier
	Observer domain.Observer
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (m Matcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m Matcher) observe(o domain.Outcome) domain.Outcome {
	if m.Observer != nil {
		m.Observer.Observe(o)
	}
	return o
}

// FindCandidates scores every element declaring a primary phrase and returns
// the matches best first. Confidence is the matched phrase length over the
// normalized transcript length; only the first matching phrase of an element
// counts. Phrases that normalize to "" are skipped and never match, so a
// transcript that normalizes to "" yields no candidates.
func FindCandidates(ctx context.Context, s surface.Surface, transcript string) ([]Match, error) {
	norm := Normalize(transcript)
	if norm == "" {
		return nil, nil
	}
	els, err := s.QueryAll(ctx, "["+surface.AttrVoice+"]")
	if err != nil {
		return nil, fmt.Errorf("query voice elements: %w", err)
	}
	var out []Match
	for _, el := range els {
		d, err := el.Describe(ctx)
		if err != nil {
			continue
		}
		voice := d.Attr(surface.AttrVoice)
		if voice == "" {
			continue
		}
		for _, phrase := range phrases(voice, d.Attr(surface.AttrVoiceIntents)) {
			np := Normalize(phrase)
			if np == "" || !strings.Contains(norm, np) {
				continue
			}
			action := domain.Kind(strings.TrimSpace(d.Attr(surface.AttrVoiceAction)))
			if action == "" {
				action = domain.KindClick
			}
			out = append(out, Match{
				Element:    el,
				Action:     action,
				Confidence: float64(len(np)) / float64(len(norm)),
				Phrase:     phrase,
				Voice:      voice,
			})
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func phrases(primary, intents string) []string {
	out := []string{primary}
	if intents == "" {
		return out
	}
	for _, p := range strings.Split(intents, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveAndExecute runs the top candidate's declared action and reports the
// outcome to the observer.
func (m Matcher) ResolveAndExecute(ctx context.Context, s surface.Surface, transcript string) domain.Outcome {
	o := domain.NewOutcome(transcript, m.now())
	matches, err := FindCandidates(ctx, s, transcript)
	if err != nil {
		m.Logger.Error().Err(err).Msg("find candidates")
		return m.observe(o.Fail(domain.PathStatic, ResultNoMatch, fmt.Errorf("%w: %v", domain.ErrNoCandidates, err)))
	}
	m.Logger.Debug().Str("transcript", transcript).Int("candidates", len(matches)).Msg("voice matches")
	if len(matches) == 0 {
		return m.observe(o.Fail(domain.PathStatic, ResultNoMatch, domain.ErrNoCandidates))
	}
	best := matches[0]
	o.Matched = best.Phrase
	action, err := domain.StaticAction(best.Action)
	if err != nil {
		m.Logger.Warn().Str("action", string(best.Action)).Msg("unknown action")
		return m.observe(o.Fail(domain.PathStatic, fmt.Sprintf("Failed to execute %s", best.Action), err))
	}
	ok := m.Executor.Apply(ctx, best.Element, action)
	m.Logger.Debug().Str("action", string(best.Action)).Str("phrase", best.Phrase).Bool("ok", ok).Msg("executed")
	if !ok {
		return m.observe(o.Fail(domain.PathStatic, fmt.Sprintf("Failed to execute %s", best.Action), domain.ErrStepFailed))
	}
	return m.observe(o.Succeed(domain.PathStatic, fmt.Sprintf("Executed %s on \"%s\"", best.Action, best.Phrase)))
}
