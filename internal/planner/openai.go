package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voiceui/internal/domain"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAI builds a client with the given timeout.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration) *OpenAI {
	return &OpenAI{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Plan(ctx context.Context, query string, inventory []domain.SurfaceElement) (domain.ActionPlan, error) {
	system, err := SystemPrompt(inventory)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: UserPrompt(query)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.ActionPlan{}, err
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.ActionPlan{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return domain.ActionPlan{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return domain.ActionPlan{}, err
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
	}
	if len(out.Choices) == 0 {
		return domain.ActionPlan{}, fmt.Errorf("%w: empty completion", domain.ErrUpstream)
	}
	return decodePlan([]byte(stripFence(out.Choices[0].Message.Content)))
}

func (c *OpenAI) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// statusError classifies non-2xx responses.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %s", domain.ErrUpstream, domain.ErrRateLimited, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrUpstream, resp.Status, strings.TrimSpace(string(b)))
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
