package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/tokenstore"
)

// ErrUnknownBrowser means no live state and no mirrored token exist for a
// browser id.
var ErrUnknownBrowser = errors.New("unknown browser")

// Options configures the registry and every state it creates.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Tokens persists the bearer mirror; nil keeps tokens in memory.
	Tokens        *tokenstore.Store
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	AdminPageSize int
}

// Registry owns the states of all browsers seen by this process.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*State
	now    func() time.Time
}

func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		opts:   opts,
		logger: logger.With("component", "app.registry"),
		states: make(map[string]*State),
		now:    time.Now,
	}
}

// Get returns the live state for a browser id.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	return st, ok
}

// tokenTouchEvery bounds how often activity refreshes a browser's mirrored
// token row.
const tokenTouchEvery = time.Minute

// Resume returns the state for id, creating it when the process has not seen
// the browser yet. A new or unparseable id gets a fresh uuid. A new state
// whose browser still has a mirrored token runs the silent session probe, so
// a browser whose token survived a restart comes back signed in.
func (r *Registry) Resume(ctx context.Context, id string) *State {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	st, ok := r.states[id]
	if !ok {
		st = r.newState(id)
		r.states[id] = st
	}
	count := len(r.states)
	r.mu.Unlock()

	now := r.now()
	st.Touch(now)
	if ok {
		if st.tokenTouchDue(now, tokenTouchEvery) {
			r.touchToken(ctx, id, now)
		}
		return st
	}

	r.opts.Metrics.SetSessions(count)
	r.logger.Debug("browser state created", "browser_id", id)
	if r.hasToken(ctx, id) {
		st.tokenTouchDue(now, 0)
		r.touchToken(ctx, id, now)
		st.Lock()
		st.Probe(ctx)
		st.Unlock()
	}
	return st
}

func (r *Registry) hasToken(ctx context.Context, id string) bool {
	if r.opts.Tokens == nil {
		return false
	}
	_, ok, err := r.opts.Tokens.Get(ctx, id)
	if err != nil {
		r.logger.Warn("read token mirror failed", "browser_id", id, "error", err)
		return false
	}
	return ok
}

func (r *Registry) touchToken(ctx context.Context, id string, now time.Time) {
	if r.opts.Tokens == nil {
		return
	}
	if err := r.opts.Tokens.Touch(ctx, id, now); err != nil {
		r.logger.Warn("touch token mirror failed", "browser_id", id, "error", err)
	}
}

func (r *Registry) newState(id string) *State {
	logger := r.logger.With("browser_id", id)
	var tokens marketapi.TokenSource = &marketapi.MemoryTokens{}
	if r.opts.Tokens != nil {
		tokens = r.opts.Tokens.Mirror(id)
	}
	api := marketapi.New(marketapi.Options{
		BaseURL:    r.opts.BaseURL,
		HTTPClient: r.opts.HTTPClient,
		Tokens:     tokens,
		Metrics:    r.opts.Metrics,
		Logger:     logger.With("component", "marketapi"),
	})
	return NewState(id, api, r.opts.Metrics, r.opts.AdminPageSize, logger)
}

// Client returns the API client acting for browserID: the live state's client
// when this process holds the browser, otherwise a bearer-only client built
// from the token mirror. The stand-alone checkout worker only has the latter.
func (r *Registry) Client(ctx context.Context, browserID string) (*marketapi.Client, error) {
	if st, ok := r.Get(browserID); ok {
		return st.API, nil
	}
	if r.opts.Tokens == nil {
		return nil, fmt.Errorf("browser %s: %w", browserID, ErrUnknownBrowser)
	}
	token, ok, err := r.opts.Tokens.Get(ctx, browserID)
	if err != nil {
		return nil, fmt.Errorf("load token for browser %s: %w", browserID, err)
	}
	if !ok || token == "" {
		return nil, fmt.Errorf("browser %s: %w", browserID, ErrUnknownBrowser)
	}
	return marketapi.New(marketapi.Options{
		BaseURL:    r.opts.BaseURL,
		HTTPClient: r.opts.HTTPClient,
		Tokens:     r.opts.Tokens.Mirror(browserID),
		Metrics:    r.opts.Metrics,
		Logger:     r.logger.With("browser_id", browserID, "component", "marketapi"),
	}), nil
}

// Len reports how many browsers are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Sweep evicts states idle for longer than idleTTL and prunes stale token
// rows. Rows of browsers still held are kept.
func (r *Registry) Sweep(ctx context.Context, idleTTL time.Duration) int {
	cutoff := r.now().Add(-idleTTL)

	r.mu.Lock()
	evicted := 0
	live := make([]string, 0, len(r.states))
	for id, st := range r.states {
		if st.idleSince().Before(cutoff) {
			delete(r.states, id)
			evicted++
			continue
		}
		live = append(live, id)
	}
	count := len(r.states)
	r.mu.Unlock()

	r.opts.Metrics.SetSessions(count)
	if r.opts.Tokens != nil {
		if n, err := r.opts.Tokens.Prune(ctx, cutoff, live...); err != nil {
			r.logger.Warn("prune token mirror failed", "error", err)
		} else if n > 0 {
			r.logger.Info("pruned token mirror", "removed", n)
		}
	}
	if evicted > 0 {
		r.logger.Info("evicted idle browser states", "evicted", evicted, "remaining", count)
	}
	return evicted
}

// RunSweeper sweeps every interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, idleTTL)
		}
	}
}
