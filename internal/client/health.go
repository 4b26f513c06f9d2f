package client

import (
	"context"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

type HealthState int

const (
	HealthStateUnreachable HealthState = iota
	HealthStateReachable
)

const healthProbeTimeout = 5 * time.Second

// HealthChecker probes the server's /health endpoint on a jittered
// interval and keeps the last observed reachability state. Long-running
// commands consult it before issuing requests.
type HealthChecker struct {
	once          sync.Once
	lock          sync.Mutex
	state         HealthState
	checkInterval time.Duration
	client        *Client
}

func NewHealthChecker(client *Client, checkInterval time.Duration) *HealthChecker {
	return &HealthChecker{
		state:         HealthStateUnreachable,
		checkInterval: checkInterval,
		client:        client,
	}
}

// Start probes once synchronously, then keeps probing until ctx is
// canceled. Only one background loop is ever started.
func (h *HealthChecker) Start(ctx context.Context) {
	h.do(ctx)

	h.once.Do(func() {
		go func() {
			t := jitterbug.New(h.checkInterval, &jitterbug.Norm{Stdev: 100 * time.Millisecond})
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					h.do(ctx)
				}
			}
		}()
	})
}

func (h *HealthChecker) State() HealthState {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.state
}

func (h *HealthChecker) do(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	err := h.client.Health(probeCtx)

	h.lock.Lock()
	prev := h.state
	if err != nil {
		h.state = HealthStateUnreachable
	} else {
		h.state = HealthStateReachable
	}
	next := h.state
	h.lock.Unlock()

	// log transitions only, not every probe
	if prev != next {
		if next == HealthStateReachable {
			zap.S().Named("health").Info("server is reachable")
		} else {
			zap.S().Named("health").Warnf("server is unreachable: %v", err)
		}
	}
}
