package voiceuisdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal voiceui HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	UserAgent   string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Element is one inventory entry.
type Element struct {
	TagName          string `json:"tagName"`
	ID               string `json:"id,omitempty"`
	ClassName        string `json:"className,omitempty"`
	Role             string `json:"role,omitempty"`
	AriaLabel        string `json:"ariaLabel,omitempty"`
	TextContent      string `json:"textContent,omitempty"`
	Type             string `json:"type,omitempty"`
	Placeholder      string `json:"placeholder,omitempty"`
	Value            string `json:"value,omitempty"`
	Href             string `json:"href,omitempty"`
	DataVoice        string `json:"dataVoice,omitempty"`
	DataVoiceIntents string `json:"dataVoiceIntents,omitempty"`
	DataVoiceAction  string `json:"dataVoiceAction,omitempty"`
	Path             string `json:"path"`
}

// Step is one plan instruction.
type Step struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description"`
}

// Plan is a planner response.
type Plan struct {
	Steps      []Step  `json:"steps"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Outcome is the terminal record of one command.
type Outcome struct {
	ID             string    `json:"id"`
	Command        string    `json:"command"`
	Result         string    `json:"result"`
	Status         string    `json:"status"`
	ProcessingType string    `json:"processingType"`
	Matched        string    `json:"matched,omitempty"`
	AIPlan         *Plan     `json:"aiPlan,omitempty"`
	At             time.Time `json:"at"`
}

// Session is a server-side surface.
type Session struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// Plan asks the server's planner for a plan over inventory.
func (c *Client) Plan(ctx context.Context, query string, inventory []Element) (Plan, error) {
	body := map[string]any{
		"userQuery":  query,
		"domContext": inventory,
	}
	var resp Plan
	err := c.do(ctx, http.MethodPost, "plan", body, &resp)
	return resp, err
}

// Transcribe uploads audio for transcription.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var resp struct {
		Transcript string `json:"transcript"`
	}
	err = c.send(req, &resp)
	return resp.Transcript, err
}

// CreateSession opens a surface from inline HTML or a URL loaded in the server's browser.
func (c *Client) CreateSession(ctx context.Context, html, pageURL string) (Session, error) {
	body := map[string]any{}
	if html != "" {
		body["html"] = html
	}
	if pageURL != "" {
		body["url"] = pageURL
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", body, &resp)
	return resp, err
}

// Inventory lists a session's visible interactive elements.
func (c *Client) Inventory(ctx context.Context, sessionID string) ([]Element, error) {
	var resp struct {
		Items []Element `json:"items"`
	}
	endpoint := fmt.Sprintf("sessions/%s/inventory", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Command resolves a transcript against a session. Mode is static, ai or auto.
func (c *Client) Command(ctx context.Context, sessionID, transcript, mode string) (Outcome, error) {
	body := map[string]any{"transcript": transcript}
	if mode != "" {
		body["mode"] = mode
	}
	var resp Outcome
	endpoint := fmt.Sprintf("sessions/%s/commands", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DeleteSession closes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "sessions/"+url.PathEscape(sessionID), nil, nil)
}

// Outcomes returns recent journal entries, newest first. Empty filters match all.
func (c *Client) Outcomes(ctx context.Context, limit int, path, status string) ([]Outcome, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if path != "" {
		q.Set("path", path)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "outcomes"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Outcome `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	bp := c.BasePath
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(c.BaseURL, "/") + strings.TrimRight(bp, "/")
}
