package domain

import "fmt"

// MinConfidence is the inclusive acceptance threshold for planner output.
const MinConfidence = 0.3

// PlannerFailureReasoning is the reasoning carried by a synthetic plan when the
// planner could not be reached.
const PlannerFailureReasoning = "Failed to generate action plan due to API error"

// ActionStep is one instruction in a plan.
type ActionStep struct {
	Kind        Kind   `json:"type" enum:"click,type,select,focus,scroll,wait,custom"`
	Target      string `json:"target"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description"`
}

// ActionPlan is an ordered list of steps plus the planner's self-assessment.
type ActionPlan struct {
	Steps      []ActionStep `json:"steps"`
	Confidence float64      `json:"confidence" minimum:"0" maximum:"1"`
	Reasoning  string       `json:"reasoning"`
}

// Accepted reports whether the plan clears the confidence gate.
func (p ActionPlan) Accepted() bool {
	return p.Confidence >= MinConfidence
}

// FailedPlan is the zero-confidence plan substituted for an unreachable planner.
func FailedPlan(reasoning string) ActionPlan {
	if reasoning == "" {
		reasoning = PlannerFailureReasoning
	}
	return ActionPlan{Steps: []ActionStep{}, Confidence: 0, Reasoning: reasoning}
}

// Validate checks the plan shape: confidence range and the closed kind set.
// Target resolution is left to the pipeline.
func (p ActionPlan) Validate() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidPlan, p.Confidence)
	}
	for i, s := range p.Steps {
		if !isPlanKind(s.Kind) {
			return fmt.Errorf("%w: step %d has unknown type %q", ErrInvalidPlan, i, s.Kind)
		}
	}
	return nil
}
