package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultInterval is the display cadence of the countdown.
const DefaultInterval = time.Second

// ErrInvalidDeadline is returned synchronously by Start for a deadline that cannot be used.
var ErrInvalidDeadline = errors.New("invalid deadline")

// Option configures a Timer.
type Option func(*Timer)

// WithInterval overrides the display cadence (tests use milliseconds).
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock injects the wall clock used to compute remaining time.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		if now != nil {
			t.now = now
		}
	}
}

// Timer turns an absolute deadline into a countdown and a single expiry signal.
//
// The expiry fires from one deadline-relative timer armed once per Start, never from
// accumulated ticks, so display delays cannot shift it. Ticks are delivered on a
// buffered channel where the newest value replaces an unread one.
type Timer struct {
	now      func() time.Time
	interval time.Duration
	ticks    chan int

	mu     sync.Mutex
	gen    uint64
	cancel chan struct{}
	expiry *time.Timer
	ticker *time.Ticker
}

func New(opts ...Option) *Timer {
	t := &Timer{
		now:      time.Now,
		interval: DefaultInterval,
		ticks:    make(chan int, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ticks returns the stream of whole seconds remaining. It is never closed.
func (t *Timer) Ticks() <-chan int {
	return t.ticks
}

// Start arms the countdown for deadline, superseding any previous schedule.
// onExpire runs exactly once on its own goroutine unless Stop or another Start comes first.
// A deadline already in the past expires on the next scheduling turn without ticks.
func (t *Timer) Start(deadline time.Time, onExpire func()) error {
	if deadline.IsZero() {
		return ErrInvalidDeadline
	}
	if onExpire == nil {
		onExpire = func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.drainLocked()
	t.gen++
	gen := t.gen
	cancel := make(chan struct{})
	t.cancel = cancel

	remaining := deadline.Sub(t.now())
	if remaining <= 0 {
		go t.expire(gen, onExpire)
		return nil
	}

	t.expiry = time.NewTimer(remaining)
	t.ticker = time.NewTicker(t.interval)
	initial := wholeSeconds(remaining)
	t.publishLocked(initial)

	go t.run(gen, deadline, initial, t.expiry.C, t.ticker.C, cancel, onExpire)
	return nil
}

// Stop cancels all pending work. Safe to call when nothing is scheduled.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
}

// Armed reports whether a countdown is currently scheduled.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Timer) run(gen uint64, deadline time.Time, last int, expiryC <-chan time.Time, tickC <-chan time.Time, cancel <-chan struct{}, onExpire func()) {
	for {
		select {
		case <-cancel:
			return
		case <-expiryC:
			t.expire(gen, onExpire)
			return
		case <-tickC:
			secs := wholeSeconds(deadline.Sub(t.now()))
			if secs > last {
				secs = last
			}
			last = secs

			t.mu.Lock()
			if t.gen != gen {
				t.mu.Unlock()
				return
			}
			t.publishLocked(secs)
			t.mu.Unlock()
		}
	}
}

func (t *Timer) expire(gen uint64, onExpire func()) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.drainLocked()
	t.gen++
	t.mu.Unlock()

	onExpire()
}

func (t *Timer) stopLocked() {
	if t.expiry != nil {
		t.expiry.Stop()
		t.expiry = nil
	}
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
}

func (t *Timer) publishLocked(secs int) {
	select {
	case t.ticks <- secs:
	default:
		t.drainLocked()
		select {
		case t.ticks <- secs:
		default:
		}
	}
}

func (t *Timer) drainLocked() {
	select {
	case <-t.ticks:
	default:
	}
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// FormatRemaining renders whole seconds as mm:ss.
func FormatRemaining(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
