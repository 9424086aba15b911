// Package planner turns an utterance plus an element inventory into an
// ActionPlan through an external text-generation service.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"voiceui/internal/domain"
)

// Planner is the plan-generation collaborator. Errors wrap domain.ErrUpstream,
// and additionally domain.ErrRateLimited when the service throttled the call.
type Planner interface {
	Plan(ctx context.Context, query string, inventory []domain.SurfaceElement) (domain.ActionPlan, error)
}

type Func func(ctx context.Context, query string, inventory []domain.SurfaceElement) (domain.ActionPlan, error)

func (f Func) Plan(ctx context.Context, query string, inventory []domain.SurfaceElement) (domain.ActionPlan, error) {
	return f(ctx, query, inventory)
}

// Static always returns the same plan.
func Static(plan domain.ActionPlan) Planner {
	return Func(func(context.Context, string, []domain.SurfaceElement) (domain.ActionPlan, error) {
		return plan, nil
	})
}

// SystemPrompt renders the planner instructions around the inventory.
func SystemPrompt(inventory []domain.SurfaceElement) (string, error) {
	if inventory == nil {
		inventory = []domain.SurfaceElement{}
	}
	b, err := json.MarshalIndent(inventory, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal inventory: %w", err)
	}
	return fmt.Sprintf(systemPrompt, string(b)), nil
}

// UserPrompt renders the per-request instruction.
func UserPrompt(query string) string {
	return fmt.Sprintf("User query: %q\n\nGenerate an action plan to accomplish this request using the available DOM elements.", query)
}

// decodePlan parses and checks a plan emitted by the model.
func decodePlan(raw []byte) (domain.ActionPlan, error) {
	var plan domain.ActionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("%w: decode plan: %v", domain.ErrUpstream, err)
	}
	if err := plan.Validate(); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if plan.Steps == nil {
		plan.Steps = []domain.ActionStep{}
	}
	return plan, nil
}

const systemPrompt = `You are a voice UI assistant that helps users interact with web pages through natural language commands.

Your job is to analyze user queries and generate step-by-step action plans to accomplish their goals using the available DOM elements.

CRITICAL RULES:
1. ONLY use elements that actually exist in the DOM context provided below
2. Do NOT create fictional selectors or data-voice attributes
3. Use the exact 'path' selector provided for each element
4. For dropdowns/selects, use the element's path and provide the desired value
5. If an exact match isn't available, find the closest existing element

Available DOM elements:
%s

Available action types:
- click: Click on an element
- type: Type text into an input field
- select: Select an option from a dropdown (use value parameter for the option)
- focus: Focus on an element
- scroll: Scroll to an element
- wait: Wait for a specified time (milliseconds)
- custom: Custom action with description

IMPORTANT:
- For color selection, look for elements with data-voice containing "color" and use 'select' action with the desired color as value
- For play/pause, look for elements with data-voice containing "play" or "music"
- Always use the exact 'path' from the DOM element, never create new selectors
- If you can't find an exact match, explain why in your reasoning and set confidence low

Examples:
- "Select blue color" -> Find color selector element, use select action with value "blue"
- "Play music" -> Find music/play element, use click action
- "Send message Hi Mom" -> Focus message input, type "Hi Mom", click send button

Respond with a single JSON object of the form:
{"steps":[{"type":"click|type|select|focus|scroll|wait|custom","target":"<path>","value":"<optional>","description":"<what this step does>"}],"confidence":<0..1>,"reasoning":"<why this plan>"}`
