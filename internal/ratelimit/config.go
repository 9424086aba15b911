package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier is one limit/window pair.
type Tier struct {
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

// Tiers maps endpoints to limits.
type Tiers struct {
	Transcribe Tier `yaml:"transcribe" json:"transcribe"`
	Plan       Tier `yaml:"plan" json:"plan"`
	Default    Tier `yaml:"default" json:"default"`
}

func DefaultTiers() Tiers {
	return Tiers{
		Transcribe: Tier{Limit: 60, Window: time.Minute},
		Plan:       Tier{Limit: 60, Window: time.Minute},
		Default:    Tier{Limit: 100, Window: 15 * time.Minute},
	}
}

// Bucket scopes. Requests that reach the planner or the transcriber through
// another endpoint are charged to these scopes as well.
const (
	ScopeTranscribe = "transcribe"
	ScopePlan       = "plan"
	ScopeDefault    = "default"
)

// Scope names the bucket a request path is counted in.
func Scope(path string) string {
	switch {
	case strings.Contains(path, "/transcribe"):
		return ScopeTranscribe
	case strings.Contains(path, "/plan"):
		return ScopePlan
	}
	return ScopeDefault
}

// Scoped returns the tier for a scope; unknown scopes use Default.
func (t Tiers) Scoped(scope string) Tier {
	switch scope {
	case ScopeTranscribe:
		return t.Transcribe
	case ScopePlan:
		return t.Plan
	}
	return t.Default
}

// For returns the tier and scope for a request path.
func (t Tiers) For(path string) (Tier, string) {
	scope := Scope(path)
	return t.Scoped(scope), scope
}

func (t Tiers) Validate() error {
	for name, tier := range map[string]Tier{ScopeTranscribe: t.Transcribe, ScopePlan: t.Plan, ScopeDefault: t.Default} {
		if tier.Limit <= 0 {
			return fmt.Errorf("rate_limits.%s.limit must be positive", name)
		}
		if tier.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive", name)
		}
	}
	return nil
}
