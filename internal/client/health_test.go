package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quelmap-inc/quelmap/internal/client"
)

var _ = Describe("HealthChecker", func() {
	var (
		healthy    atomic.Bool
		testServer *httptest.Server
	)

	BeforeEach(func() {
		healthy.Store(true)
		testServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !healthy.Load() {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
	})

	AfterEach(func() {
		testServer.Close()
	})

	It("reports a reachable server after the first synchronous probe", func() {
		checker := client.NewHealthChecker(newTestClient(testServer), time.Hour)
		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()

		checker.Start(ctx)
		Expect(checker.State()).To(Equal(client.HealthStateReachable))
	})

	It("flips to unreachable when probes start failing", func() {
		checker := client.NewHealthChecker(newTestClient(testServer), 5*time.Millisecond)
		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()

		checker.Start(ctx)
		Expect(checker.State()).To(Equal(client.HealthStateReachable))

		healthy.Store(false)
		Eventually(checker.State, "5s", "10ms").Should(Equal(client.HealthStateUnreachable))

		healthy.Store(true)
		Eventually(checker.State, "5s", "10ms").Should(Equal(client.HealthStateReachable))
	})
})
