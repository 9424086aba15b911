package planner

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"voiceui/internal/domain"
	voiceuisdk "voiceui/sdk/go"
)

// Remote delegates planning to another voiceui server's /plan endpoint.
type Remote struct {
	Client *voiceuisdk.Client
}

func (r Remote) Plan(ctx context.Context, query string, inventory []domain.SurfaceElement) (domain.ActionPlan, error) {
	elems := make([]voiceuisdk.Element, 0, len(inventory))
	for _, e := range inventory {
		elems = append(elems, voiceuisdk.Element{
			TagName:          e.Tag,
			ID:               e.ID,
			ClassName:        e.ClassName,
			Role:             e.Role,
			AriaLabel:        e.AriaLabel,
			TextContent:      e.Text,
			Type:             e.Type,
			Placeholder:      e.Placeholder,
			Value:            e.Value,
			Href:             e.Href,
			DataVoice:        e.Voice,
			DataVoiceIntents: e.VoiceIntents,
			DataVoiceAction:  e.VoiceAction,
			Path:             e.Locator,
		})
	}
	p, err := r.Client.Plan(ctx, query, elems)
	if err != nil {
		var apiErr *voiceuisdk.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return domain.ActionPlan{}, fmt.Errorf("%w: %w", domain.ErrUpstream, domain.ErrRateLimited)
		}
		return domain.ActionPlan{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	plan := domain.ActionPlan{Confidence: p.Confidence, Reasoning: p.Reasoning, Steps: make([]domain.ActionStep, 0, len(p.Steps))}
	for _, s := range p.Steps {
		plan.Steps = append(plan.Steps, domain.ActionStep{
			Kind:        domain.Kind(s.Type),
			Target:      s.Target,
			Value:       s.Value,
			Description: s.Description,
		})
	}
	if err := plan.Validate(); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return plan, nil
}
