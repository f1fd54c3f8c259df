package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSessionExpired is returned to every caller when the refresh exchange fails.
var ErrSessionExpired = errors.New("session expired")

// ErrSuperseded is returned, wrapped in ErrSessionExpired, when OnSuccess
// refuses a token because the session it was fetched for has ended.
var ErrSuperseded = errors.New("refresh superseded by a newer session")

// ErrNoExchange is returned by New when Config.Exchange is nil.
var ErrNoExchange = errors.New("refresh exchange function required")

// State is the coordinator phase.
type State uint8

const (
	// StateIdle means no exchange is in flight.
	StateIdle State = iota
	// StateRefreshing means an exchange is in flight and new callers are queued.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a single exchange when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config wires the coordinator to its collaborators.
type Config struct {
	// Exchange obtains a new access token. It runs detached from caller
	// cancellation and is bounded by Timeout.
	Exchange func(ctx context.Context) (string, error)
	// Current returns the token currently held, used to skip refreshes for
	// requests that failed with a token that has since been replaced.
	Current func() string
	// OnSuccess stores the new token. It runs before any waiter is released.
	// A non-nil error discards the token: waiters receive the error wrapped in
	// ErrSessionExpired and OnFailure is not called.
	OnSuccess func(token string) error
	// OnFailure tears the session down. It runs before any waiter is released.
	OnFailure func(ctx context.Context, err error)
	// OnQueued is called each time a caller joins the queue.
	OnQueued func()
	// OnShortcut is called when a caller is handed the current token without
	// an exchange.
	OnShortcut func()
	// OnSettled observes every exchange outcome and its duration.
	OnSettled func(err error, took time.Duration)
	Timeout   time.Duration
}

type result struct {
	token string
	err   error
}

// Coordinator serializes refresh exchanges. It is safe for concurrent use.
type Coordinator struct {
	cfg Config

	mu      sync.Mutex
	state   State
	waiters []chan result

	exchanges atomic.Uint64
	queued    atomic.Uint64
	shortcuts atomic.Uint64
}

// Stats is a point-in-time view of coordinator counters.
type Stats struct {
	State     State
	Exchanges uint64
	Queued    uint64
	Shortcuts uint64
	Waiting   int
}

// New validates cfg and returns an idle Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Exchange == nil {
		return nil, ErrNoExchange
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Coordinator{cfg: cfg}, nil
}

// Refresh returns a fresh access token. stale is the token the failing request
// carried ("" when it carried none).
//
// When Idle and the currently held token is non-empty and differs from stale, the
// current token is returned without an exchange: another caller already refreshed.
// Otherwise the caller either starts the exchange or waits for the one in flight.
// A cancelled ctx stops the wait but never cancels the shared exchange.
func (c *Coordinator) Refresh(ctx context.Context, stale string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.state == StateIdle {
		if cur := c.current(); cur != "" && cur != stale {
			c.mu.Unlock()
			c.shortcuts.Add(1)
			if c.cfg.OnShortcut != nil {
				c.cfg.OnShortcut()
			}
			return cur, nil
		}
	}

	ch := make(chan result, 1)
	c.waiters = append(c.waiters, ch)
	leader := c.state == StateIdle
	if leader {
		c.state = StateRefreshing
	} else {
		c.queued.Add(1)
	}
	c.mu.Unlock()

	if leader {
		go c.run(context.WithoutCancel(ctx))
	} else if c.cfg.OnQueued != nil {
		c.cfg.OnQueued()
	}

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	c.exchanges.Add(1)
	start := time.Now()

	exCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	tok, err := c.exchange(exCtx)
	cancel()

	if err == nil && tok == "" {
		err = errors.New("refresh returned empty token")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
		tok = ""
	}

	rejected := false
	if err == nil && c.cfg.OnSuccess != nil {
		if serr := c.cfg.OnSuccess(tok); serr != nil {
			err = fmt.Errorf("%w: %w", ErrSessionExpired, serr)
			tok = ""
			rejected = true
		}
	}

	if c.cfg.OnSettled != nil {
		c.cfg.OnSettled(err, time.Since(start))
	}

	if err != nil && !rejected && c.cfg.OnFailure != nil {
		c.cfg.OnFailure(ctx, err)
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result{token: tok, err: err}
	}
}

func (c *Coordinator) exchange(ctx context.Context) (tok string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh exchange panicked: %v", r)
		}
	}()
	return c.cfg.Exchange(ctx)
}

func (c *Coordinator) current() string {
	if c.cfg.Current == nil {
		return ""
	}
	return c.cfg.Current()
}

// State returns the current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the coordinator counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	st, waiting := c.state, len(c.waiters)
	c.mu.Unlock()
	return Stats{
		State:     st,
		Exchanges: c.exchanges.Load(),
		Queued:    c.queued.Load(),
		Shortcuts: c.shortcuts.Load(),
		Waiting:   waiting,
	}
}
