package httpserver

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
)

const (
	// maxViewsPerSession caps how many login tabs one browser session may hold open.
	maxViewsPerSession = 8
	// defaultMaxViews caps the registry as a whole. Cookieless clients get a
	// new session on every GET, so the per-session cap alone does not bound it.
	defaultMaxViews = 4096
)

var errNoViewFactory = errors.New("httpserver: view factory is required")

// flowRegistryConfig configures a flowRegistry.
type flowRegistryConfig struct {
	TTL      time.Duration
	MaxViews int
	Now      func() time.Time
	Factory  func() (*loginflow.Flow, error)
}

type viewEntry struct {
	id        string
	sessionID string
	flow      *loginflow.Flow
	lastSeen  time.Time
}

// flowRegistry holds the mounted login views, one per rendered login page.
// A view is bound to the session that mounted it and is dropped once idle
// for longer than the TTL.
type flowRegistry struct {
	mu      sync.Mutex
	views    map[string]*viewEntry
	ttl      time.Duration
	maxViews int
	now      func() time.Time
	factory  func() (*loginflow.Flow, error)
}

func newFlowRegistry(cfg flowRegistryConfig) *flowRegistry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultViewTTL
	}
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = defaultMaxViews
	}
	return &flowRegistry{
		views:    make(map[string]*viewEntry),
		ttl:      cfg.TTL,
		maxViews: cfg.MaxViews,
		now:      cfg.Now,
		factory:  cfg.Factory,
	}
}

// Mount creates a fresh view for sessionID.
func (r *flowRegistry) Mount(sessionID string) (string, *loginflow.Flow, error) {
	if r.factory == nil {
		return "", nil, errNoViewFactory
	}
	flow, err := r.factory()
	if err != nil {
		return "", nil, err
	}

	now := r.now()
	entry := &viewEntry{
		id:        uuid.NewString(),
		sessionID: sessionID,
		flow:      flow,
		lastSeen:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)
	r.capSessionLocked(sessionID)
	r.capTotalLocked()
	r.views[entry.id] = entry
	return entry.id, flow, nil
}

// Lookup returns the view viewID when it belongs to sessionID.
func (r *flowRegistry) Lookup(sessionID, viewID string) (*loginflow.Flow, bool) {
	if viewID == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[viewID]
	if !ok || entry.sessionID != sessionID {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.flow, true
}

// Resolve looks viewID up and mounts a replacement when it is unknown, e.g.
// after a restart or once the view has been evicted.
func (r *flowRegistry) Resolve(sessionID, viewID string) (string, *loginflow.Flow, error) {
	if flow, ok := r.Lookup(sessionID, viewID); ok {
		return viewID, flow, nil
	}
	return r.Mount(sessionID)
}

// Unmount discards a view.
func (r *flowRegistry) Unmount(viewID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, viewID)
}

// Len reports the number of mounted views.
func (r *flowRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *flowRegistry) sweepLocked(now time.Time) {
	for id, entry := range r.views {
		if now.Sub(entry.lastSeen) <= r.ttl {
			continue
		}
		// An in-flight submit still owns its view.
		if entry.flow.State() == loginflow.Submitting {
			continue
		}
		delete(r.views, id)
	}
}

func (r *flowRegistry) capSessionLocked(sessionID string) {
	var owned []*viewEntry
	for _, entry := range r.views {
		if entry.sessionID == sessionID {
			owned = append(owned, entry)
		}
	}
	for len(owned) >= maxViewsPerSession {
		oldest := oldestIndex(owned)
		delete(r.views, owned[oldest].id)
		owned = append(owned[:oldest], owned[oldest+1:]...)
	}
}

// capTotalLocked evicts the least recently seen idle views until one more
// fits. Views with a submit in flight are never evicted, so the registry can
// briefly exceed the cap while many attempts are pending.
func (r *flowRegistry) capTotalLocked() {
	if len(r.views) < r.maxViews {
		return
	}
	idle := make([]*viewEntry, 0, len(r.views))
	for _, entry := range r.views {
		if entry.flow.State() != loginflow.Submitting {
			idle = append(idle, entry)
		}
	}
	slices.SortFunc(idle, func(a, b *viewEntry) int {
		return a.lastSeen.Compare(b.lastSeen)
	})
	for _, entry := range idle {
		if len(r.views) < r.maxViews {
			return
		}
		delete(r.views, entry.id)
	}
}

func oldestIndex(entries []*viewEntry) int {
	oldest := 0
	for i, entry := range entries {
		if entry.lastSeen.Before(entries[oldest].lastSeen) {
			oldest = i
		}
	}
	return oldest
}
