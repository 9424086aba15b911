package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voiceui/internal/domain"
	voiceuisdk "voiceui/sdk/go"
)

var inventory = []domain.SurfaceElement{
	{Tag: "select", ID: "color", Voice: "color picker", Locator: "#color"},
}

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestOpenAIPlan(t *testing.T) {
	reqs := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var got chatRequest
		_ = json.NewDecoder(r.Body).Decode(&got)
		reqs <- got
		_ = json.NewEncoder(w).Encode(completion("```json\n" +
			`{"steps":[{"type":"select","target":"#color","value":"blue","description":"pick blue"}],"confidence":0.8,"reasoning":"color picker"}` +
			"\n```"))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "key", "llama-3.1-8b-instant", 5*time.Second)
	plan, err := c.Plan(context.Background(), "select blue color", inventory)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Kind != domain.KindSelect || plan.Steps[0].Value != "blue" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", plan.Confidence)
	}
	got := <-reqs
	if got.Model != "llama-3.1-8b-instant" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, `"path": "#color"`) {
		t.Fatalf("system prompt missing inventory: %s", got.Messages[0].Content)
	}
	if !strings.Contains(got.Messages[1].Content, `"select blue color"`) {
		t.Fatalf("user prompt missing query: %s", got.Messages[1].Content)
	}
}

func fakeCompletions(t *testing.T, status int, content string) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "slow down", status)
			return
		}
		_ = json.NewEncoder(w).Encode(completion(content))
	}))
	t.Cleanup(srv.Close)
	return NewOpenAI(srv.URL, "", "m", time.Second)
}

func TestOpenAIErrors(t *testing.T) {
	ctx := context.Background()

	_, err := fakeCompletions(t, http.StatusTooManyRequests, "").Plan(ctx, "x", inventory)
	if !errors.Is(err, domain.ErrRateLimited) || !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected rate limited upstream error, got %v", err)
	}

	_, err = fakeCompletions(t, http.StatusInternalServerError, "").Plan(ctx, "x", inventory)
	if !errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected plain upstream error, got %v", err)
	}

	bad := `{"steps":[{"type":"explode","target":"#x","description":"?"}],"confidence":0.9,"reasoning":"r"}`
	if _, err := fakeCompletions(t, http.StatusOK, bad).Plan(ctx, "x", inventory); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected invalid plan, got %v", err)
	}

	if _, err := fakeCompletions(t, http.StatusOK, "not json").Plan(ctx, "x", inventory); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestRemotePlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/plan" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			UserQuery  string               `json:"userQuery"`
			DomContext []voiceuisdk.Element `json:"domContext"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.DomContext) != 1 || body.DomContext[0].Path != "#color" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"steps":      []any{map[string]any{"type": "click", "target": "#color", "description": "open"}},
			"confidence": 0.5,
			"reasoning":  "remote",
		})
	}))
	defer srv.Close()

	plan, err := Remote{Client: voiceuisdk.New(srv.URL)}.Plan(context.Background(), "open colors", inventory)
	if err != nil {
		t.Fatalf("remote plan: %v", err)
	}
	if plan.Reasoning != "remote" || len(plan.Steps) != 1 || plan.Steps[0].Kind != domain.KindClick {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestRemoteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := Remote{Client: voiceuisdk.New(srv.URL)}.Plan(context.Background(), "x", nil)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}
