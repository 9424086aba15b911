package mcp

import (
	"context"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/engine"
	"voiceui/internal/executor"
	"voiceui/internal/planner"
	"voiceui/internal/surface/dom"
)

const page = `<body>
<button id="send" data-voice="send message">Send</button>
<input id="message" type="text" placeholder="Message">
</body>`

func newTestServer(t *testing.T, pl planner.Planner) (*Server, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	eng := engine.New(engine.Options{
		Planner:  pl,
		Executor: executor.Executor{Sleep: func(context.Context, time.Duration) {}},
		Logger:   zerolog.Nop(),
	})
	eng.Pipeline.Sleep = func(context.Context, time.Duration) {}
	s, err := New(Config{Engine: eng, Surface: doc, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	return s, doc
}

func TestNewRequiresSurface(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without a surface")
	}
}

func TestInventory(t *testing.T) {
	s, _ := newTestServer(t, nil)
	result, out, err := s.handleInventory(context.Background(), &mcpsdk.CallToolRequest{}, InventoryInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got error result: %s", out.Error)
	}
	if len(out.Items) != 2 {
		t.Fatalf("expected 2 elements, got %+v", out.Items)
	}
	if out.Items[0].Locator != "#send" {
		t.Fatalf("expected #send locator first, got %q", out.Items[0].Locator)
	}
}

func TestCommandStatic(t *testing.T) {
	s, doc := newTestServer(t, nil)
	result, out, err := s.handleCommand(context.Background(), &mcpsdk.CallToolRequest{}, CommandInput{Transcript: "send message please"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Path != string(domain.PathStatic) || out.Status != string(domain.StatusSuccess) {
		t.Fatalf("unexpected outcome %+v", out)
	}

	_, evs, _ := s.handleEvents(context.Background(), &mcpsdk.CallToolRequest{}, EventsInput{})
	if len(evs.Events) == 0 || evs.Events[len(evs.Events)-1].ID != "send" {
		t.Fatalf("expected click on #send, got %+v", evs.Events)
	}
	if len(doc.Events()) != len(evs.Events) {
		t.Fatalf("events tool out of sync with document")
	}
}

func TestCommandPlanned(t *testing.T) {
	s, doc := newTestServer(t, planner.Static(domain.ActionPlan{
		Steps:      []domain.ActionStep{{Kind: domain.KindType, Target: "#message", Value: "hello", Description: "type"}},
		Confidence: 0.8,
		Reasoning:  "message box",
	}))
	result, out, err := s.handleCommand(context.Background(), &mcpsdk.CallToolRequest{}, CommandInput{Transcript: "write hello", Mode: "ai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Plan == nil || len(out.Steps) != 1 || !out.Steps[0].OK {
		t.Fatalf("expected executed plan, got %+v", out)
	}
	el, _ := doc.Query(context.Background(), "#message")
	d, _ := el.Describe(context.Background())
	if d.Value != "hello" {
		t.Fatalf("expected typed value, got %q", d.Value)
	}
}

func TestCommandFailures(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	result, out, err := s.handleCommand(ctx, &mcpsdk.CallToolRequest{}, CommandInput{Transcript: "hello", Mode: "fuzzy"})
	if err != nil || result == nil || !result.IsError || out.Error == "" {
		t.Fatalf("expected IsError for unknown mode, got %+v %v", out, err)
	}

	result, out, _ = s.handleCommand(ctx, &mcpsdk.CallToolRequest{}, CommandInput{Transcript: "open the pod bay doors"})
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for unmatched command")
	}
	if out.Status != string(domain.StatusError) || out.Command != "open the pod bay doors" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
