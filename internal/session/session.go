// Package session keeps the surfaces voice commands are resolved against.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voiceui/internal/surface"
	"voiceui/internal/surface/dom"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrForbidden   = errors.New("session belongs to another principal")
	ErrInvalidSpec = errors.New("session needs exactly one of html or url")
	ErrNoBrowser   = errors.New("browser sessions are not available")
)

type Kind string

const (
	KindDOM     Kind = "dom"
	KindBrowser Kind = "browser"
)

// Spec describes a session to create. Owner is the authenticated subject,
// empty when auth is off.
type Spec struct {
	HTML  string
	URL   string
	Owner string
}

// URLOpener opens a live page. The closer releases it.
type URLOpener func(ctx context.Context, url string) (surface.Surface, io.Closer, error)

// Session is one surface plus its resolution lock.
type Session struct {
	ID        string
	Kind      Kind
	Owner     string
	CreatedAt time.Time

	surface   surface.Surface
	closer    io.Closer
	serialize bool
	mu        sync.Mutex
}

// Surface returns the session surface without taking the lock.
func (s *Session) Surface() surface.Surface { return s.surface }

// Do runs fn against the surface. When the registry serializes sessions, at
// most one fn runs per session at a time.
func (s *Session) Do(fn func(surface.Surface)) {
	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn(s.surface)
}

// Registry holds live sessions. It is safe for concurrent use.
type Registry struct {
	Serialize bool
	OpenURL   URLOpener
	Logger    zerolog.Logger
	Now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(serialize bool, open URLOpener, logger zerolog.Logger) *Registry {
	return &Registry{Serialize: serialize, OpenURL: open, Logger: logger, Now: time.Now, sessions: make(map[string]*Session)}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) Create(ctx context.Context, spec Spec) (*Session, error) {
	if (spec.HTML == "") == (spec.URL == "") {
		return nil, ErrInvalidSpec
	}
	s := &Session{ID: uuid.NewString(), Owner: spec.Owner, CreatedAt: r.now().UTC(), serialize: r.Serialize}
	if spec.HTML != "" {
		doc, err := dom.ParseString(spec.HTML)
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		s.Kind, s.surface = KindDOM, doc
	} else {
		if r.OpenURL == nil {
			return nil, ErrNoBrowser
		}
		surf, closer, err := r.OpenURL(ctx, spec.URL)
		if err != nil {
			return nil, err
		}
		s.Kind, s.surface, s.closer = KindBrowser, surf, closer
	}

	r.mu.Lock()
	if r.sessions == nil {
		r.sessions = make(map[string]*Session)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.Logger.Info().Str("session", s.ID).Str("kind", string(s.Kind)).Msg("session created")
	return s, nil
}

// Get returns the session if owner may use it. Sessions created without an
// owner are shared.
func (r *Registry) Get(id, owner string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.Owner != "" && s.Owner != owner {
		return nil, ErrForbidden
	}
	return s, nil
}

// List returns the sessions visible to owner, oldest first.
func (r *Registry) List(owner string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.Owner == "" || s.Owner == owner {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Delete(id, owner string) error {
	s, err := r.Get(id, owner)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.Logger.Info().Str("session", id).Msg("session deleted")
	return s.close()
}

// Close releases every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	var errs []error
	for _, s := range all {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) close() error {
	if s.closer == nil {
		return nil
	}
	// Wait for an in-flight resolution.
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}
