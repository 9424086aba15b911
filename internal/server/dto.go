package server

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"voiceui/internal/domain"
	"voiceui/internal/events"
	"voiceui/internal/session"
)

// Request limits.
const (
	maxQueryLength    = 1000
	maxInventoryBytes = 50000
	maxLanguageLength = 10
	maxSanitized      = 10000
)

// Request payloads

type PlanRequest struct {
	UserQuery  string                  `json:"userQuery" minLength:"1" maxLength:"1000"`
	DOMContext []domain.SurfaceElement `json:"domContext"`
}

type CreateSessionRequest struct {
	HTML string `json:"html,omitempty"`
	URL  string `json:"url,omitempty" format:"uri"`
}

type CommandRequest struct {
	Transcript string `json:"transcript" minLength:"1" maxLength:"1000"`
	Mode       string `json:"mode,omitempty" enum:"static,ai,auto"`
}

// Response payloads

type SessionResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind" enum:"dom,browser"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type InventoryResponse struct {
	Items []domain.SurfaceElement `json:"items"`
}

type TranscriptResponse struct {
	Transcript string `json:"transcript"`
}

type OutcomeResponse struct {
	Seq     int64                `json:"seq,omitempty"`
	Session string               `json:"session,omitempty"`
	ID      string               `json:"id"`
	Command string               `json:"command"`
	Result  string               `json:"result"`
	Status  domain.Status        `json:"status" enum:"success,error,pending"`
	Path    domain.Path          `json:"processingType" enum:"static,ai,error"`
	Matched string               `json:"matched,omitempty"`
	Plan    *domain.ActionPlan   `json:"aiPlan,omitempty"`
	Steps   []domain.StepOutcome `json:"steps,omitempty"`
	Error   string               `json:"error,omitempty"`
	At      time.Time            `json:"at" format:"date-time"`
}

type paginatedOutcomes struct {
	Items []OutcomeResponse `json:"items"`
}

type paginatedSessions struct {
	Items []SessionResponse `json:"items"`
}

// Conversion helpers

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{ID: s.ID, Kind: string(s.Kind), CreatedAt: s.CreatedAt.Format(time.RFC3339)}
}

func outcomeResponse(o domain.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		ID:      o.ID,
		Command: o.Command,
		Result:  o.Result,
		Status:  o.Status,
		Path:    o.Path,
		Matched: o.Matched,
		Plan:    o.Plan,
		Steps:   o.Steps,
		At:      o.At,
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

func recordResponse(r events.Record) OutcomeResponse {
	resp := outcomeResponse(r.Outcome)
	resp.Seq, resp.Session, resp.Error = r.Seq, r.Session, r.Error
	return resp
}

// Validation helpers

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	scriptScheme  = regexp.MustCompile(`(?i)javascript:`)
	dataScheme    = regexp.MustCompile(`(?i)data:`)
)

// sanitize strips markup and script-bearing URL schemes from user text.
func sanitize(s string) string {
	s = angleBrackets.ReplaceAllString(s, "")
	s = scriptScheme.ReplaceAllString(s, "")
	s = dataScheme.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxSanitized {
		s = string(r[:maxSanitized])
	}
	return s
}

func validateQuery(q string) (string, error) {
	n := len([]rune(q))
	if n == 0 {
		return "", fmt.Errorf("%w: query cannot be empty", domain.ErrEmptyCommand)
	}
	if n > maxQueryLength {
		return "", fmt.Errorf("invalid query: longer than %d characters", maxQueryLength)
	}
	return sanitize(q), nil
}

func validateInventory(items []domain.SurfaceElement) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("invalid domContext: %w", err)
	}
	if len(data) >= maxInventoryBytes {
		return fmt.Errorf("invalid domContext: %d bytes exceeds %d", len(data), maxInventoryBytes)
	}
	return nil
}

func validateLanguage(lang string) (string, error) {
	if len([]rune(lang)) > maxLanguageLength {
		return "", fmt.Errorf("invalid language: longer than %d characters", maxLanguageLength)
	}
	return sanitize(lang), nil
}
