package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"voiceui/internal/app"
	"voiceui/internal/domain"
	"voiceui/internal/engine"
	"voiceui/internal/events"
	"voiceui/internal/locator"
	"voiceui/internal/migrate"
	"voiceui/internal/ratelimit"
	"voiceui/internal/session"
	"voiceui/internal/surface"
	"voiceui/internal/transcribe"
)

// Multipart uploads carry the audio plus a few short fields.
const maxUploadBytes = transcribe.MaxAudioBytes + 1<<20

type HealthResponse struct {
	Status      string `json:"status" example:"ok"`
	Journal     int    `json:"journal_schema"`
	Planner     bool   `json:"planner"`
	Transcriber bool   `json:"transcriber"`
}

func registerHealth(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		v, err := migrate.Version(a.DB)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:      "ok",
			Journal:     v,
			Planner:     a.Engine.Pipeline.Planner != nil,
			Transcriber: a.Engine.Transcriber != nil,
		}}, nil
	})
}

func registerPlan(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "plan",
		Method:      http.MethodPost,
		Path:        "/plan",
		Summary:     "Generate an action plan for an utterance",
		Errors:      []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body PlanRequest `json:"body"`
	}) (*struct {
		Body domain.ActionPlan `json:"body"`
	}, error) {
		pl := a.Engine.Pipeline.Planner
		if pl == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "planner_unavailable", "planner not configured", nil)
		}
		query, err := validateQuery(input.Body.UserQuery)
		if err != nil {
			return nil, handleError(err)
		}
		if err := validateInventory(input.Body.DOMContext); err != nil {
			return nil, handleError(err)
		}
		plan, err := pl.Plan(ctx, query, input.Body.DOMContext)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionPlan `json:"body"`
		}{Body: plan}, nil
	})
}

type audioUpload struct {
	audio    []byte
	filename string
	language string
}

// readAudio validates and reads the multipart audio field.
func readAudio(form *multipart.Form) (audioUpload, error) {
	if form == nil || len(form.File["audio"]) == 0 {
		return audioUpload{}, newAPIError(http.StatusBadRequest, "bad_request", "No audio file provided", nil)
	}
	fh := form.File["audio"][0]
	if fh.Size > transcribe.MaxAudioBytes {
		return audioUpload{}, newAPIError(http.StatusBadRequest, "bad_request", "File size exceeds 25MB limit", map[string]any{"size": fh.Size})
	}
	if !transcribe.IsAudio(fh.Header.Get("Content-Type"), fh.Filename) {
		return audioUpload{}, newAPIError(http.StatusBadRequest, "bad_request", "File must be an audio file", nil)
	}
	lang, err := validateLanguage(formValue(form, "language"))
	if err != nil {
		return audioUpload{}, handleError(err)
	}
	f, err := fh.Open()
	if err != nil {
		return audioUpload{}, handleError(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, transcribe.MaxAudioBytes+1))
	if err != nil {
		return audioUpload{}, handleError(err)
	}
	return audioUpload{audio: data, filename: fh.Filename, language: lang}, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func registerTranscribe(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:  "transcribe",
		Method:       http.MethodPost,
		Path:         "/transcribe",
		Summary:      "Transcribe an audio clip",
		MaxBodyBytes: maxUploadBytes,
		Errors:       []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*struct {
		Body TranscriptResponse `json:"body"`
	}, error) {
		tr := a.Engine.Transcriber
		if tr == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "transcriber_unavailable", "transcriber not configured", nil)
		}
		up, err := readAudio(&input.RawBody)
		if err != nil {
			return nil, err
		}
		text, err := tr.Transcribe(ctx, up.audio, up.filename, up.language)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TranscriptResponse `json:"body"`
		}{Body: TranscriptResponse{Transcript: text}}, nil
	})
}

type sessionPath struct {
	ID string `path:"id"`
}

func registerSessions(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Open a surface from HTML or a live page URL",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		s, err := a.Sessions.Create(ctx, session.Spec{HTML: input.Body.HTML, URL: input.Body.URL, Owner: ownerFromContext(ctx)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: sessionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List open sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body paginatedSessions `json:"body"`
	}, error) {
		resp := paginatedSessions{Items: []SessionResponse{}}
		for _, s := range a.Sessions.List(ownerFromContext(ctx)) {
			resp.Items = append(resp.Items, sessionResponse(s))
		}
		return &struct {
			Body paginatedSessions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Close a session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		if err := a.Sessions.Delete(input.ID, ownerFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-inventory",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/inventory",
		Summary:     "List the visible interactive elements of a session",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body InventoryResponse `json:"body"`
	}, error) {
		s, err := a.Sessions.Get(input.ID, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		var items []domain.SurfaceElement
		s.Do(func(surf surface.Surface) {
			items, err = locator.Discover(ctx, surf)
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.SurfaceElement{}
		}
		return &struct {
			Body InventoryResponse `json:"body"`
		}{Body: InventoryResponse{Items: items}}, nil
	})
}

func registerCommands(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "session-command",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/commands",
		Summary:     "Resolve and execute a transcript against a session",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body CommandRequest `json:"body"`
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		s, err := a.Sessions.Get(input.ID, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		mode, err := engine.ParseMode(input.Body.Mode)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		transcript, err := validateQuery(input.Body.Transcript)
		if err != nil {
			return nil, handleError(err)
		}
		eng := a.EngineFor(s.ID)
		if err := chargeUpstreams(ctx, eng, mode, false); err != nil {
			return nil, err
		}
		var out domain.Outcome
		s.Do(func(surf surface.Surface) {
			out = eng.HandleTranscript(ctx, surf, transcript, mode)
		})
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "session-audio-command",
		Method:       http.MethodPost,
		Path:         "/sessions/{id}/audio",
		Summary:      "Transcribe audio and execute it against a session",
		MaxBodyBytes: maxUploadBytes,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody multipart.Form
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		s, err := a.Sessions.Get(input.ID, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		up, err := readAudio(&input.RawBody)
		if err != nil {
			return nil, err
		}
		mode, err := engine.ParseMode(formValue(&input.RawBody, "mode"))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		eng := a.EngineFor(s.ID)
		if err := chargeUpstreams(ctx, eng, mode, true); err != nil {
			return nil, err
		}
		var out domain.Outcome
		s.Do(func(surf surface.Surface) {
			out = eng.HandleAudio(ctx, surf, up.audio, up.filename, up.language, mode)
		})
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(out)}, nil
	})
}

// chargeUpstreams counts a session command against the transcribe and plan
// tiers when it will reach those collaborators.
func chargeUpstreams(ctx context.Context, eng engine.Engine, mode engine.Mode, audio bool) error {
	if audio && eng.Transcriber != nil {
		if err := chargeScope(ctx, ratelimit.ScopeTranscribe); err != nil {
			return err
		}
	}
	if eng.Resolve(mode) == engine.ModeAI && eng.Pipeline.Planner != nil {
		return chargeScope(ctx, ratelimit.ScopePlan)
	}
	return nil
}

func registerOutcomes(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-outcomes",
		Method:      http.MethodGet,
		Path:        "/outcomes",
		Summary:     "List recent outcomes",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit   int    `query:"limit" default:"50"`
		Path    string `query:"path" enum:"static,ai,error"`
		Status  string `query:"status" enum:"success,error,pending"`
		Session string `query:"session"`
	}) (*struct {
		Body paginatedOutcomes `json:"body"`
	}, error) {
		if input.Session != "" {
			// Outcomes outlive their session; only foreign sessions are refused.
			if _, err := a.Sessions.Get(input.Session, ownerFromContext(ctx)); errors.Is(err, session.ErrForbidden) {
				return nil, handleError(err)
			}
		}
		recs, err := a.Journal.List(ctx, events.Filter{
			Session: input.Session,
			Path:    domain.Path(input.Path),
			Status:  domain.Status(input.Status),
			Limit:   normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOutcomes{Items: []OutcomeResponse{}}
		for _, r := range recs {
			resp.Items = append(resp.Items, recordResponse(r))
		}
		return &struct {
			Body paginatedOutcomes `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEventStream(r chi.Router, basePath string, a *app.App) {
	r.Get(path.Join(basePath, "events"), func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(req.URL.Query().Get("session"))
		if id != "" {
			if _, err := a.Sessions.Get(id, ownerFromContext(req.Context())); err != nil {
				respondStatusError(w, handleError(err))
				return
			}
		}
		a.Hub.ServeWS(w, req, id)
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Subject string `json:"subject" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		subject := strings.TrimSpace(input.Body.Subject)
		if subject == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subject is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, subject, time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		out := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		out.Body.Token = token
		return out, nil
	})
}
