package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
)

const (
	// DefaultPollInterval is the fixed delay between the resolution of
	// one report fetch and the start of the next.
	DefaultPollInterval = 1000 * time.Millisecond

	// transportFailureThreshold is the number of consecutive transport
	// failures after which the failure is surfaced to subscribers. The
	// cycle keeps retrying either way.
	transportFailureThreshold = 3
)

// ReportAPI is the part of the service client the poller needs.
type ReportAPI interface {
	GetReport(ctx context.Context, jobID string) (*api.Report, error)
}

// Update is one published poll result. Exactly one of Report and Warning
// is set: Report is the whole snapshot taken atomically from one response,
// Warning is a soft transport-failure notice (the cycle is still running).
type Update struct {
	Report  *api.Report
	Warning error
}

// Subscription is one observer of a job's polling cycle. Updates delivers
// the latest value; a slow consumer sees the newest snapshot, not every
// intermediate one. The channel is closed when the job reaches a terminal
// state or the subscription is canceled.
type Subscription struct {
	ch     chan Update
	cancel func()

	mu     sync.Mutex
	closed bool
}

// Updates returns the subscription's update channel.
func (s *Subscription) Updates() <-chan Update {
	return s.ch
}

// Cancel detaches the observer. When the last observer of a job detaches,
// the scheduled next fetch is canceled; an in-flight fetch may finish but
// its result is discarded.
func (s *Subscription) Cancel() {
	s.cancel()
}

// push and close share s.mu so a publisher holding a stale reference to a
// canceled subscription never sends on a closed channel.
func (s *Subscription) push(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// drop-oldest: keep only the newest pending update
	for {
		select {
		case s.ch <- u:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// cycle is the per-job polling state machine: Idle -> Polling ->
// Done/Failed. One goroutine owns the fetch loop, so fetches for one job
// are strictly sequential.
type cycle struct {
	jobID      string
	cancelLoop context.CancelFunc

	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	last     *api.Report
	terminal bool
	stopped  bool
}

func (c *cycle) publish(u Update) {
	c.mu.Lock()
	if u.Report != nil {
		c.last = u.Report
	}
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.push(u)
	}
}

func (c *cycle) finish() {
	c.mu.Lock()
	c.terminal = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = map[*Subscription]struct{}{}
	c.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Poller tracks report snapshots for jobs until they reach a terminal
// state. Polling for a job is single-flight: any number of observers share
// one cycle.
type Poller struct {
	client   ReportAPI
	interval time.Duration

	mu     sync.Mutex
	cycles map[string]*cycle
}

func NewPoller(c ReportAPI) *Poller {
	return &Poller{
		client:   c,
		interval: DefaultPollInterval,
		cycles:   make(map[string]*cycle),
	}
}

// SetInterval overrides the fixed poll delay. Intended for tests.
func (p *Poller) SetInterval(d time.Duration) {
	p.interval = d
}

// Watch subscribes to the polling cycle for jobID, starting one if none is
// running. A subscriber to a job that already reached a terminal state
// receives the last snapshot and a closed channel.
func (p *Poller) Watch(jobID string) *Subscription {
	for {
		p.mu.Lock()
		c, ok := p.cycles[jobID]
		if !ok {
			ctx, cancelLoop := context.WithCancel(context.Background())
			c = &cycle{
				jobID:      jobID,
				cancelLoop: cancelLoop,
				subs:       make(map[*Subscription]struct{}),
			}
			p.cycles[jobID] = c
			go p.run(ctx, c)
		}
		p.mu.Unlock()

		sub := &Subscription{ch: make(chan Update, 1)}
		sub.cancel = func() { p.detach(c, sub) }

		c.mu.Lock()
		if c.terminal {
			last := c.last
			c.mu.Unlock()
			if last != nil {
				sub.push(Update{Report: last})
			}
			sub.close()
			return sub
		}
		if c.stopped {
			// the last observer canceled between the map lookup and the
			// attach; this cycle will never publish again, start a fresh one
			c.mu.Unlock()
			p.mu.Lock()
			if p.cycles[jobID] == c {
				delete(p.cycles, jobID)
			}
			p.mu.Unlock()
			continue
		}
		c.subs[sub] = struct{}{}
		if c.last != nil {
			sub.push(Update{Report: c.last})
		}
		c.mu.Unlock()
		return sub
	}
}

// Snapshot returns the most recently published report for jobID, if any.
func (p *Poller) Snapshot(jobID string) (*api.Report, bool) {
	p.mu.Lock()
	c, ok := p.cycles[jobID]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, false
	}
	return c.last, true
}

func (p *Poller) detach(c *cycle, sub *Subscription) {
	c.mu.Lock()
	_, attached := c.subs[sub]
	delete(c.subs, sub)
	// stopped is decided under c.mu so a racing Watch either attaches
	// before this and keeps the cycle alive, or sees stopped and retries
	stop := len(c.subs) == 0 && !c.terminal && !c.stopped
	if stop {
		c.stopped = true
	}
	c.mu.Unlock()

	if attached {
		sub.close()
	}
	if stop {
		// last observer gone: stop the cycle; an in-flight fetch is
		// abandoned, its result never published
		c.cancelLoop()
		p.mu.Lock()
		if p.cycles[c.jobID] == c {
			delete(p.cycles, c.jobID)
		}
		p.mu.Unlock()
	}
}

func (p *Poller) run(ctx context.Context, c *cycle) {
	log := zap.S().Named("poller")
	failures := 0

	for {
		report, err := p.client.GetReport(ctx, c.jobID)
		if ctx.Err() != nil {
			// canceled while the fetch was in flight: discard
			return
		}
		if err != nil {
			failures++
			log.Debugf("report fetch for %s failed (%d consecutive): %v", c.jobID, failures, err)
			if failures >= transportFailureThreshold {
				c.publish(Update{Warning: err})
			}
		} else {
			failures = 0
			c.publish(Update{Report: report})
			if report.Terminal() {
				c.finish()
				return
			}
		}

		// next fetch is armed only after this one resolved
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
