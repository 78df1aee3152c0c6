package realms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrRealmUnavailable means the target realm has no live connection.
	ErrRealmUnavailable = errors.New("realm is not connected")
	// ErrTimeout means the realm did not answer within the request window.
	ErrTimeout = errors.New("realm request timed out")
	// ErrMalformedResponse means the realm answered with undecodable data.
	ErrMalformedResponse = errors.New("malformed realm response")
)

const (
	// counterLimit is the highest correlation id before the counter wraps
	// back to zero.
	counterLimit = 1_000_000

	defaultCallTimeout   = 10 * time.Second
	defaultEntryTTL      = 20 * time.Second
	defaultSweepInterval = 5 * time.Second
)

type callResult struct {
	resp Response
	err  error
}

// call is one in-flight request. resolved guarantees the result channel
// is written at most once, whoever gets there first.
type call struct {
	ch       chan callResult
	resolved atomic.Bool
	created  time.Time
}

func (c *call) resolve(res callResult) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}

	c.ch <- res

	return true
}

// Router correlates requests pushed to realms with the responses that
// come back on the same connections. Correlation ids are drawn from a
// wrapping counter; each id maps to a one-shot pending call.
type Router struct {
	reg     *Registry
	calls   sync.Map // uint32 -> *call
	counter atomic.Uint32

	timeout   time.Duration
	ttl       time.Duration
	sweepEach time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewRouter(reg *Registry) *Router {
	r := &Router{
		reg:       reg,
		timeout:   defaultCallTimeout,
		ttl:       defaultEntryTTL,
		sweepEach: defaultSweepInterval,
		stop:      make(chan struct{}),
	}

	go r.janitor()

	return r
}

// Close stops the janitor. In-flight calls still resolve normally.
func (r *Router) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Router) nextID() uint32 {
	for {
		cur := r.counter.Load()

		next := cur + 1
		if cur == counterLimit {
			next = 0
		}

		if r.counter.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Send pushes a correlated request to the realm and blocks until the
// response arrives, the per-call window elapses, or ctx is cancelled.
// An offline realm fails fast without allocating a correlation entry.
func (r *Router) Send(ctx context.Context, realmID int, subject string, info []string) (Response, error) {
	sender, ok := r.reg.sender(realmID)
	if !ok {
		return Response{}, fmt.Errorf("realm %d: %w", realmID, ErrRealmUnavailable)
	}

	payload, err := json.Marshal(wireRequest{Subject: subject, Info: info})
	if err != nil {
		return Response{}, fmt.Errorf("encode %q request: %w", subject, err)
	}

	id := r.nextID()
	c := &call{ch: make(chan callResult, 1), created: time.Now()}
	r.calls.Store(id, c)

	err = sender.SendRequest(id, payload)
	if err != nil {
		r.calls.Delete(id)

		return Response{}, fmt.Errorf("realm %d: %w: %v", realmID, ErrRealmUnavailable, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-c.ch:
		return callReturn(realmID, subject, res)
	case <-timer.C:
		if c.resolve(callResult{err: ErrTimeout}) {
			r.calls.Delete(id)

			return Response{}, fmt.Errorf("realm %d, subject %q: %w", realmID, subject, ErrTimeout)
		}
		// Lost the race, the real result is already in the channel.
		return callReturn(realmID, subject, <-c.ch)
	case <-ctx.Done():
		if c.resolve(callResult{err: ctx.Err()}) {
			r.calls.Delete(id)

			return Response{}, fmt.Errorf("realm %d, subject %q: %w", realmID, subject, ctx.Err())
		}

		return callReturn(realmID, subject, <-c.ch)
	}
}

// callReturn attaches the realm and subject to errors delivered over the
// result channel, so janitor expiries and decode failures read the same
// as direct timeouts.
func callReturn(realmID int, subject string, res callResult) (Response, error) {
	if res.err != nil {
		return Response{}, fmt.Errorf("realm %d, subject %q: %w", realmID, subject, res.err)
	}

	return res.resp, nil
}

// dispatch resolves the pending call for corrID with the raw response
// payload. Responses with no matching entry (late, or already resolved)
// are dropped.
func (r *Router) dispatch(corrID uint32, payload []byte) {
	v, ok := r.calls.LoadAndDelete(corrID)
	if !ok {
		slog.Debug("dropping unmatched realm response", "correlation_id", corrID)

		return
	}

	c := v.(*call)

	var resp Response

	err := json.Unmarshal(payload, &resp)
	if err != nil {
		slog.Warn("undecodable realm response",
			"correlation_id", corrID,
			"payload", string(payload),
			"error", err)
		c.resolve(callResult{err: ErrMalformedResponse})

		return
	}

	c.resolve(callResult{resp: resp})
}

// janitor expires correlation entries whose caller never collected a
// result, so abandoned requests cannot leak entries forever. The TTL is
// deliberately longer than the per-call window.
func (r *Router) janitor() {
	ticker := time.NewTicker(r.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.calls.Range(func(key, value any) bool {
				c := value.(*call)
				if now.Sub(c.created) < r.ttl {
					return true
				}

				r.calls.Delete(key)
				c.resolve(callResult{err: ErrTimeout})

				return true
			})
		}
	}
}
