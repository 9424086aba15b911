package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"voiceui/internal/config"
	"voiceui/internal/ratelimit"
)

// Policy holds the request policy that can change while serving: rate-limit
// tiers and the CORS allow-list.
type Policy struct {
	v atomic.Pointer[policySnapshot]
}

type policySnapshot struct {
	tiers   ratelimit.Tiers
	origins map[string]bool
	devMode bool
}

func NewPolicy(cfg *config.Config) *Policy {
	p := &Policy{}
	p.Update(cfg)
	return p
}

// Update swaps in the policy from cfg.
func (p *Policy) Update(cfg *config.Config) {
	snap := &policySnapshot{
		tiers:   cfg.RateLimits.Tiers,
		origins: make(map[string]bool, len(cfg.Server.AllowedOrigins)),
		devMode: cfg.Server.DevMode,
	}
	for _, o := range cfg.Server.AllowedOrigins {
		snap.origins[strings.TrimRight(o, "/")] = true
	}
	p.v.Store(snap)
}

func (p *Policy) load() *policySnapshot {
	if s := p.v.Load(); s != nil {
		return s
	}
	return &policySnapshot{tiers: ratelimit.DefaultTiers()}
}

// Tiers returns the current rate-limit tiers.
func (p *Policy) Tiers() ratelimit.Tiers { return p.load().tiers }

func (s *policySnapshot) originAllowed(origin string) bool {
	return s.devMode || s.origins[origin]
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "origin-when-cross-origin")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// newCORSMiddleware answers preflights and rejects cross-origin requests from
// origins outside the allow-list. Requests without an Origin header are not
// browser cross-origin requests and pass through.
func newCORSMiddleware(policy *Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := policy.load()
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "86400")
			if origin != "" && snap.originAllowed(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			if origin != "" && !snap.originAllowed(origin) {
				respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden_origin", "Forbidden origin", map[string]any{"origin": origin}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// quota charges one client's requests. The middleware charges the path scope;
// handlers that reach the planner or transcriber charge those scopes too.
type quota struct {
	limiter *ratelimit.Limiter
	tiers   ratelimit.Tiers
	id      string
	logger  zerolog.Logger
}

type quotaKey struct{}

func (q quota) check(scope string) (ratelimit.Decision, http.Header) {
	tier := q.tiers.Scoped(scope)
	d := q.limiter.Check(scope+"|"+q.id, tier.Limit, tier.Window)
	h := http.Header{}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
	return d, h
}

func (q quota) denied(scope string, d ratelimit.Decision, h http.Header) huma.StatusError {
	retry := int64(d.RetryAfter(q.limiter.Now()).Seconds())
	q.logger.Warn().Str("identifier", q.id).Str("scope", scope).Int("limit", d.Limit).Time("reset", d.ResetAt).Msg("rate limited")
	h.Set("Retry-After", strconv.FormatInt(retry, 10))
	return newAPIError(http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded", map[string]any{"retryAfter": retry, "scope": scope})
}

// chargeScope counts the current request against scope as well. It is a no-op
// outside the rate-limit middleware.
func chargeScope(ctx context.Context, scope string) error {
	q, ok := ctx.Value(quotaKey{}).(quota)
	if !ok {
		return nil
	}
	d, h := q.check(scope)
	if d.Allowed {
		return nil
	}
	return huma.ErrorWithHeaders(q.denied(scope, d, h), h)
}

// newRateLimitMiddleware counts every API request against the tier chosen by
// its path.
func newRateLimitMiddleware(basePath string, limiter *ratelimit.Limiter, policy *Policy, logger zerolog.Logger) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, basePath) || r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}
			q := quota{limiter: limiter, tiers: policy.Tiers(), id: ratelimit.ClientIdentifier(r), logger: logger}
			scope := ratelimit.Scope(r.URL.Path)
			d, h := q.check(scope)
			if !d.Allowed {
				err := q.denied(scope, d, h)
				for k, v := range h {
					w.Header()[k] = v
				}
				respondStatusError(w, err)
				return
			}
			for k, v := range h {
				w.Header()[k] = v
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), quotaKey{}, q)))
		})
	}
}
