package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"voiceui/internal/domain"
	"voiceui/internal/engine"
	"voiceui/internal/locator"
	"voiceui/internal/surface/dom"
)

// InventoryInput is empty; the tool always reads the loaded page.
type InventoryInput struct{}

// InventoryOutput lists the discovered elements.
type InventoryOutput struct {
	Items []domain.SurfaceElement `json:"items"`
	Error string                  `json:"error,omitempty"`
}

// CommandInput defines parameters for the voice_command tool.
type CommandInput struct {
	Transcript string `json:"transcript" jsonschema:"spoken command text"`
	Mode       string `json:"mode,omitempty" jsonschema:"resolution mode: static, ai or auto (default auto)"`
}

// CommandOutput is the terminal outcome of one command.
type CommandOutput struct {
	ID      string               `json:"id"`
	Command string               `json:"command"`
	Result  string               `json:"result"`
	Status  string               `json:"status"`
	Path    string               `json:"processingType"`
	Matched string               `json:"matched,omitempty"`
	Plan    *domain.ActionPlan   `json:"aiPlan,omitempty"`
	Steps   []domain.StepOutcome `json:"steps,omitempty"`
	At      string               `json:"at"`
	Error   string               `json:"error,omitempty"`
}

func commandOutput(o domain.Outcome) CommandOutput {
	out := CommandOutput{
		ID:      o.ID,
		Command: o.Command,
		Result:  o.Result,
		Status:  string(o.Status),
		Path:    string(o.Path),
		Matched: o.Matched,
		Plan:    o.Plan,
		Steps:   o.Steps,
		At:      o.At.Format(time.RFC3339Nano),
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

// EventsInput is empty.
type EventsInput struct{}

// EventsOutput lists recorded UI events.
type EventsOutput struct {
	Events []dom.Event `json:"events"`
}

func (s *Server) handleInventory(ctx context.Context, req *mcpsdk.CallToolRequest, input InventoryInput) (*mcpsdk.CallToolResult, InventoryOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := locator.Discover(ctx, s.surface)
	if err != nil {
		s.logger.Error().Err(err).Msg("inventory failed")
		return &mcpsdk.CallToolResult{IsError: true}, InventoryOutput{Error: err.Error()}, nil
	}
	if items == nil {
		items = []domain.SurfaceElement{}
	}
	return nil, InventoryOutput{Items: items}, nil
}

func (s *Server) handleCommand(ctx context.Context, req *mcpsdk.CallToolRequest, input CommandInput) (*mcpsdk.CallToolResult, CommandOutput, error) {
	mode, err := engine.ParseMode(input.Mode)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, CommandOutput{Error: err.Error()}, nil
	}
	s.mu.Lock()
	o := s.engine.HandleTranscript(ctx, s.surface, input.Transcript, mode)
	s.mu.Unlock()

	out := commandOutput(o)
	if !o.Succeeded() {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleEvents(ctx context.Context, req *mcpsdk.CallToolRequest, input EventsInput) (*mcpsdk.CallToolResult, EventsOutput, error) {
	doc, ok := s.surface.(*dom.Document)
	if !ok {
		return nil, EventsOutput{Events: []dom.Event{}}, nil
	}
	evs := doc.Events()
	if evs == nil {
		evs = []dom.Event{}
	}
	return nil, EventsOutput{Events: evs}, nil
}
