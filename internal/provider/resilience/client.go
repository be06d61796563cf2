package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultAttemptTimeout  = 10 * time.Second
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig configures a Client for one upstream feed. Zero durations
// fall back to the package defaults.
type ClientConfig struct {
	// Name labels the breaker and the feed's Registry entry.
	Name string

	// Timeout bounds a single attempt, not the whole retry sequence.
	Timeout time.Duration

	// MaxRetries counts attempts after the first. Feeds default to none.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	UserAgent string

	// CircuitBreaker overrides DefaultCircuitBreakerConfig(Name). The
	// settings apply to each target's breaker.
	CircuitBreaker *CircuitBreakerConfig

	// Target splits the feed into independently tripping breakers.
	// Defaults to URLTarget.
	Target TargetKey

	// OnStateChange is called on every target breaker transition.
	OnStateChange func(StateChange)

	// Registry, when set, has the client registered under Name and
	// receives every request outcome.
	Registry *Registry
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultAttemptTimeout
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	if cfg.CircuitBreaker == nil {
		cb := DefaultCircuitBreakerConfig(cfg.Name)
		cfg.CircuitBreaker = &cb
	}
	if cfg.Target == nil {
		cfg.Target = URLTarget
	}
	return cfg
}

// DefaultClientConfig returns the settings used for NDBC feeds.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{Name: name}.withDefaults()
}

// Client wraps http.Client with per-target circuit breakers and optional
// backoff retries. Health is reported for the feed as a whole.
type Client struct {
	httpClient *http.Client
	breakers   *targetBreakers
	registry   *Registry
	config     ClientConfig
}

// NewClient builds a Client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breakers:   newTargetBreakers(cfg.Name, *cfg.CircuitBreaker, cfg.OnStateChange),
		registry:   cfg.Registry,
		config:     cfg,
	}
	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the feed name this client was configured with.
func (c *Client) Name() string {
	return c.config.Name
}

// Do sends req through its target's breaker. 5xx responses and network
// errors count as failures and are retried up to MaxRetries times. An open
// breaker fails fast with ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with ctx governing the request and the retry waits.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	breaker := c.breakers.get(c.config.Target(req))
	var lastResp *http.Response

	operation := func() error {
		// 5xx responses are returned as errors so they count against the breaker.
		resp, err := breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			attempt := req.Clone(ctx)
			if c.config.UserAgent != "" {
				attempt.Header.Set("User-Agent", c.config.UserAgent)
			}

			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}

			if resp != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		c.recordFailure(err)
		// A 5xx that exhausted retries is handed back so callers can inspect it.
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.Succeeded(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.Failed(c.config.Name, err)
	}
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CircuitBreakerState reports the feed's state folded over its targets:
// open only when every target seen so far is open.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return feedState(c.breakers.snapshot())
}

// CircuitBreakerCounts sums the current-interval counts of every target.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	var total gobreaker.Counts
	for _, ts := range c.breakers.snapshot() {
		total.Requests += ts.counts.Requests
		total.TotalSuccesses += ts.counts.TotalSuccesses
		total.TotalFailures += ts.counts.TotalFailures
	}
	return total
}

// TargetState reports the breaker state of one target. Targets that have
// not been requested yet are closed.
func (c *Client) TargetState(target string) gobreaker.State {
	for _, ts := range c.breakers.snapshot() {
		if ts.target == target {
			return ts.state
		}
	}
	return gobreaker.StateClosed
}

// OpenTargets lists the targets whose breaker is open, sorted.
func (c *Client) OpenTargets() []string {
	var open []string
	for _, ts := range c.breakers.snapshot() {
		if ts.state == gobreaker.StateOpen {
			open = append(open, ts.target)
		}
	}
	return open
}
