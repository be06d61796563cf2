package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
)

// Level summarizes a feed's breaker state for status reporting.
type Level int

const (
	// LevelUp means requests flow normally.
	LevelUp Level = iota
	// LevelProbing means some targets are open or trying a trial request.
	LevelProbing
	// LevelDown means every known target is open and requests fail fast.
	LevelDown
)

func (l Level) String() string {
	switch l {
	case LevelUp:
		return "up"
	case LevelProbing:
		return "probing"
	case LevelDown:
		return "down"
	default:
		return "unknown"
	}
}

// FeedHealth is a point-in-time view of one upstream feed client.
type FeedHealth struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	// OpenTargets lists the station files whose breaker is open.
	OpenTargets []string

	// LastSuccessAt and LastFailureAt are zero until the first outcome.
	LastSuccessAt time.Time
	LastFailureAt time.Time
	LastError     string

	// FailureStreak counts failed requests since the last success.
	FailureStreak int
}

// Level maps the breaker state onto a Level.
func (h FeedHealth) Level() Level {
	switch h.State {
	case gobreaker.StateOpen:
		return LevelDown
	case gobreaker.StateHalfOpen:
		return LevelProbing
	default:
		return LevelUp
	}
}

// Registry tracks feed clients and the outcome of their recent requests.
type Registry struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	feeds map[string]*feedEntry
}

type feedEntry struct {
	client        *Client
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string
	streak        int
}

// NewRegistry creates an empty registry stamped with wall-clock time.
func NewRegistry() *Registry {
	return NewRegistryWithClock(clockwork.NewRealClock())
}

// NewRegistryWithClock creates an empty registry that timestamps outcomes
// with clock.
func NewRegistryWithClock(clock clockwork.Clock) *Registry {
	return &Registry{
		clock: clock,
		feeds: make(map[string]*feedEntry),
	}
}

// Register adds a client under name. Re-registering a name resets its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	r.feeds[name] = &feedEntry{client: client}
	r.mu.Unlock()
}

// Remove drops a feed from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.feeds, name)
	r.mu.Unlock()
}

// Succeeded records a successful request for name. Unknown names are ignored.
func (r *Registry) Succeeded(name string) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.feeds[name]; ok {
		e.lastSuccessAt = now
		e.streak = 0
	}
}

// Failed records a failed request for name. Unknown names are ignored.
func (r *Registry) Failed(name string, err error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.feeds[name]
	if !ok {
		return
	}
	e.lastFailureAt = now
	e.streak++
	if err != nil {
		e.lastError = err.Error()
	}
}

// Feed returns the health of one feed.
func (r *Registry) Feed(name string) (FeedHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.feeds[name]
	if !ok {
		return FeedHealth{}, false
	}
	return e.snapshot(name), true
}

// Snapshot returns the health of every feed ordered by name.
func (r *Registry) Snapshot() []FeedHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FeedHealth, 0, len(r.feeds))
	for name, e := range r.feeds {
		out = append(out, e.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered feed names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered feeds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}

func (e *feedEntry) snapshot(name string) FeedHealth {
	return FeedHealth{
		Name:          name,
		State:         e.client.CircuitBreakerState(),
		Counts:        e.client.CircuitBreakerCounts(),
		OpenTargets:   e.client.OpenTargets(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
		FailureStreak: e.streak,
	}
}
