package analysis_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/analysis"
	"github.com/quelmap-inc/quelmap/internal/client"
)

// fakeReportAPI serves a scripted sequence of responses; the last step
// repeats once the script is exhausted.
type fakeReportAPI struct {
	mu     sync.Mutex
	calls  int
	script []func() (*api.Report, error)
}

func (f *fakeReportAPI) GetReport(ctx context.Context, jobID string) (*api.Report, error) {
	f.mu.Lock()
	step := f.calls
	f.calls++
	if step >= len(f.script) {
		step = len(f.script) - 1
	}
	fn := f.script[step]
	f.mu.Unlock()
	return fn()
}

func (f *fakeReportAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func running(progress string) func() (*api.Report, error) {
	return func() (*api.Report, error) {
		return &api.Report{Progress: progress}, nil
	}
}

func done(query string) func() (*api.Report, error) {
	return func() (*api.Report, error) {
		return &api.Report{Done: true, Query: query}, nil
	}
}

func failed(message string) func() (*api.Report, error) {
	return func() (*api.Report, error) {
		return &api.Report{Error: message}, nil
	}
}

func transportDown() func() (*api.Report, error) {
	return func() (*api.Report, error) {
		return nil, &client.TransportError{Op: "get report", StatusCode: 503}
	}
}

// drain reads updates until the channel closes, returning everything that
// was received.
func drain(sub *analysis.Subscription, timeout time.Duration) []analysis.Update {
	var updates []analysis.Update
	deadline := time.After(timeout)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return updates
			}
			updates = append(updates, u)
		case <-deadline:
			Fail("subscription did not close in time")
		}
	}
}

var _ = Describe("Poller", func() {
	var (
		fake   *fakeReportAPI
		poller *analysis.Poller
	)

	newPoller := func(script ...func() (*api.Report, error)) {
		fake = &fakeReportAPI{script: script}
		poller = analysis.NewPoller(fake)
		poller.SetInterval(2 * time.Millisecond)
	}

	It("polls sequentially until the job is done, then closes", func() {
		newPoller(running("loading data"), running("running python"), done("total sales"))

		sub := poller.Watch("job-1")
		updates := drain(sub, 5*time.Second)

		Expect(updates).NotTo(BeEmpty())
		last := updates[len(updates)-1]
		Expect(last.Report).NotTo(BeNil())
		Expect(last.Report.Done).To(BeTrue())
		Expect(last.Report.Query).To(Equal("total sales"))

		// the cycle stops at the terminal snapshot
		Expect(fake.count()).To(Equal(3))
	})

	It("treats a non-empty error as terminal even when done is false", func() {
		newPoller(running("loading data"), failed("python crashed"))

		sub := poller.Watch("job-1")
		updates := drain(sub, 5*time.Second)

		last := updates[len(updates)-1]
		Expect(last.Report.Error).To(Equal("python crashed"))
		Expect(last.Report.Done).To(BeFalse())
		Expect(fake.count()).To(Equal(2))
	})

	It("keeps the most recently published snapshot available", func() {
		newPoller(done("q"))

		sub := poller.Watch("job-1")
		drain(sub, 5*time.Second)

		report, ok := poller.Snapshot("job-1")
		Expect(ok).To(BeTrue())
		Expect(report.Done).To(BeTrue())
	})

	It("surfaces a warning after three consecutive transport failures and keeps retrying", func() {
		newPoller(transportDown(), transportDown(), transportDown(), done("q"))

		sub := poller.Watch("job-1")
		updates := drain(sub, 5*time.Second)

		warnings := 0
		for _, u := range updates {
			if u.Warning != nil {
				warnings++
			}
		}
		Expect(warnings).To(BeNumerically(">=", 1))
		Expect(updates[len(updates)-1].Report.Done).To(BeTrue())
	})

	It("stays silent below the failure threshold", func() {
		newPoller(transportDown(), transportDown(), done("q"))

		sub := poller.Watch("job-1")
		updates := drain(sub, 5*time.Second)

		for _, u := range updates {
			Expect(u.Warning).To(BeNil())
		}
		Expect(updates[len(updates)-1].Report.Done).To(BeTrue())
	})

	It("shares one polling cycle between concurrent observers", func() {
		newPoller(running("a"), running("b"), running("c"), done("q"))

		sub1 := poller.Watch("job-1")
		sub2 := poller.Watch("job-1")

		updates1 := drain(sub1, 5*time.Second)
		updates2 := drain(sub2, 5*time.Second)

		Expect(updates1[len(updates1)-1].Report.Done).To(BeTrue())
		Expect(updates2[len(updates2)-1].Report.Done).To(BeTrue())
		Expect(fake.count()).To(Equal(4))
	})

	It("hands a late observer the terminal snapshot and a closed channel", func() {
		newPoller(done("q"))

		first := poller.Watch("job-1")
		drain(first, 5*time.Second)
		callsAfter := fake.count()

		late := poller.Watch("job-1")
		updates := drain(late, time.Second)
		Expect(updates).To(HaveLen(1))
		Expect(updates[0].Report.Done).To(BeTrue())
		Expect(fake.count()).To(Equal(callsAfter))
	})

	It("stops polling when the last observer cancels", func() {
		newPoller(running("still going"))

		sub := poller.Watch("job-1")
		Eventually(sub.Updates()).Should(Receive())
		sub.Cancel()
		Eventually(sub.Updates()).Should(BeClosed())

		// allow an in-flight fetch to land, then the count must settle
		time.Sleep(20 * time.Millisecond)
		settled := fake.count()
		Consistently(fake.count, "50ms", "10ms").Should(Equal(settled))
	})

	It("tolerates observers canceling while snapshots are being published", func() {
		newPoller(running("tick"))
		poller.SetInterval(time.Millisecond)

		// a pinned observer keeps the cycle publishing throughout
		pinned := poller.Watch("job-1")
		defer pinned.Cancel()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 500; j++ {
					sub := poller.Watch("job-1")
					sub.Cancel()
				}
			}()
		}
		wg.Wait()

		// the cycle is still healthy after the churn
		Eventually(pinned.Updates(), "5s").Should(Receive())
	})

	It("attaches to a live cycle even when the last observer cancels concurrently", func() {
		newPoller(running("tick"))
		poller.SetInterval(time.Millisecond)

		for i := 0; i < 300; i++ {
			first := poller.Watch("job-1")
			done := make(chan struct{})
			go func() {
				first.Cancel()
				close(done)
			}()

			second := poller.Watch("job-1")
			// a subscription attached to a dead cycle would never see this
			Eventually(second.Updates(), "5s", "1ms").Should(Receive())
			<-done
			second.Cancel()
		}
	})

	It("ignores a push delivered to a canceled subscription", func() {
		newPoller(running("tick"), done("q"))

		sub := poller.Watch("job-1")
		keeper := poller.Watch("job-1")
		sub.Cancel()
		Eventually(sub.Updates()).Should(BeClosed())

		// the cycle runs on for the remaining observer
		updates := drain(keeper, 5*time.Second)
		Expect(updates[len(updates)-1].Report.Done).To(BeTrue())
	})

	It("delivers the newest snapshot to a slow observer", func() {
		newPoller(running("a"), running("b"), running("c"), done("q"))

		sub := poller.Watch("job-1")
		// don't read anything until the cycle has finished
		Eventually(fake.count, "5s", "5ms").Should(Equal(4))
		time.Sleep(10 * time.Millisecond)

		updates := drain(sub, time.Second)
		Expect(updates).To(HaveLen(1))
		Expect(updates[0].Report.Done).To(BeTrue())
	})
})
