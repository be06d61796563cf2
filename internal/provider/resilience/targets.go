package resilience

import (
	"net/http"
	"sort"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// StateChange describes a breaker transition for one target of a feed.
type StateChange struct {
	Feed   string
	Target string
	From   gobreaker.State
	To     gobreaker.State
}

// TargetKey picks the breaker a request runs through. Requests with the
// same key share failure counts.
type TargetKey func(req *http.Request) string

// URLTarget keys breakers by host and path, which is one station file per
// feed for NDBC.
func URLTarget(req *http.Request) string {
	return req.URL.Host + req.URL.Path
}

// targetBreakers lazily creates one breaker per target so a dead station
// cannot trip the breaker of a healthy one.
type targetBreakers struct {
	feed     string
	settings CircuitBreakerConfig
	onChange func(StateChange)

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

func newTargetBreakers(feed string, settings CircuitBreakerConfig, onChange func(StateChange)) *targetBreakers {
	return &targetBreakers{
		feed:     feed,
		settings: settings,
		onChange: onChange,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

func (t *targetBreakers) get(target string) *gobreaker.CircuitBreaker[*http.Response] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[target]; ok {
		return cb
	}

	cfg := t.settings
	cfg.Name = t.feed + " " + target
	hook := t.settings.OnStateChange
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		if hook != nil {
			hook(name, from, to)
		}
		if t.onChange != nil {
			t.onChange(StateChange{Feed: t.feed, Target: target, From: from, To: to})
		}
	}

	cb := NewCircuitBreaker[*http.Response](cfg) //nolint:bodyclose // type param, not response
	t.breakers[target] = cb
	return cb
}

type targetState struct {
	target string
	state  gobreaker.State
	counts gobreaker.Counts
}

func (t *targetBreakers) snapshot() []targetState {
	t.mu.Lock()
	out := make([]targetState, 0, len(t.breakers))
	for target, cb := range t.breakers {
		out = append(out, targetState{target: target, state: cb.State(), counts: cb.Counts()})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].target < out[j].target })
	return out
}

// feedState folds target states into one feed state: open when every
// known target is open, half-open when only some are, closed otherwise.
func feedState(targets []targetState) gobreaker.State {
	open, probing := 0, 0
	for _, ts := range targets {
		switch ts.state {
		case gobreaker.StateOpen:
			open++
		case gobreaker.StateHalfOpen:
			probing++
		}
	}
	switch {
	case len(targets) > 0 && open == len(targets):
		return gobreaker.StateOpen
	case open > 0 || probing > 0:
		return gobreaker.StateHalfOpen
	default:
		return gobreaker.StateClosed
	}
}
