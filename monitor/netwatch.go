package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/victoralfred/gosandbox/policy"
)

const (
	defaultSampleInterval = 500 * time.Millisecond
	defaultMaxActivities  = 1000

	// sessionJoinGrace bounds how long Stop waits for the sampling
	// goroutine after cancellation.
	sessionJoinGrace = 2 * time.Second
)

// Activity is one observed network connection.
type Activity struct {
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr"`
	Domain     string    `json:"domain,omitempty"`
	Port       int       `json:"port"`
}

// Sampler observes current network activity. The default sampler reads the
// kernel connection tables on Linux and observes nothing elsewhere.
type Sampler func(ctx context.Context) []Activity

// Watcher creates per-run network observation sessions.
type Watcher struct {
	sampler    Sampler
	interval   time.Duration
	maxEntries int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithSampler replaces the platform sampler.
func WithSampler(s Sampler) WatcherOption {
	return func(w *Watcher) {
		w.sampler = s
	}
}

// WithSampleInterval sets the sampling period.
func WithSampleInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithMaxActivities bounds the per-session activity log.
func WithMaxActivities(n int) WatcherOption {
	return func(w *Watcher) {
		w.maxEntries = n
	}
}

// NewWatcher creates a network activity watcher.
func NewWatcher(opts ...WatcherOption) *Watcher {
	w := &Watcher{
		sampler:    platformSampler(),
		interval:   defaultSampleInterval,
		maxEntries: defaultMaxActivities,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Session observes network activity for exactly one run. It is owned by the
// run's call frame and must be stopped on every exit path; a session never
// outlives the run it was created for.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	activities []Activity
	maxEntries int
}

// Watch starts a session tied to ctx. The sampling goroutine exits when the
// session is stopped or ctx is canceled, whichever comes first.
func (w *Watcher) Watch(ctx context.Context) *Session {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		cancel:     cancel,
		done:       make(chan struct{}),
		maxEntries: w.maxEntries,
	}

	go func() {
		defer close(s.done)

		if w.sampler == nil {
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.record(w.sampler(ctx))
			}
		}
	}()

	return s
}

// Stop cancels sampling, joins the goroutine with a short grace period, and
// returns the collected activity. Safe to call more than once.
func (s *Session) Stop() []Activity {
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(sessionJoinGrace):
		// The sampler is stuck in a slow read; the log collected so far is
		// still valid and the goroutine exits on its next select.
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Activity, len(s.activities))
	copy(out, s.activities)
	return out
}

func (s *Session) record(batch []Activity) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range batch {
		if len(s.activities) >= s.maxEntries {
			return
		}
		s.activities = append(s.activities, a)
	}
}

// FirstViolation returns the first activity violating the policy: a domain
// outside the allow-list or a blocked port. Nil means the activity log is
// clean.
//
// The domain check only applies to activities whose sampler supplied a
// Domain. The kernel-table sampler reports bare addresses, so port blocking
// is the enforced control for its samples; domain enforcement requires a
// sampler that resolves or captures names (e.g. one fed by DNS logs).
func FirstViolation(activities []Activity, p *policy.SecurityPolicy) *Activity {
	for i := range activities {
		a := &activities[i]
		if a.Domain != "" && !p.IsDomainAllowed(a.Domain) {
			return a
		}
		if p.IsPortBlocked(a.Port) {
			return a
		}
	}
	return nil
}
