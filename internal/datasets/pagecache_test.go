package datasets_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/client"
	"github.com/quelmap-inc/quelmap/internal/datasets"
)

func TestDatasets(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Datasets Suite")
}

// fakeTableAPI serves pages out of an in-memory row set, applying offset
// and limit the way the server would.
type fakeTableAPI struct {
	mu      sync.Mutex
	rows    []map[string]interface{}
	columns []string
	err     error
	calls   []client.TableDataParams
}

func newFakeTableAPI(n int) *fakeTableAPI {
	f := &fakeTableAPI{columns: []string{"id", "region"}}
	for i := 0; i < n; i++ {
		f.rows = append(f.rows, map[string]interface{}{"id": i, "region": fmt.Sprintf("r%d", i)})
	}
	return f
}

func (f *fakeTableAPI) GetTableData(ctx context.Context, tableName string, params client.TableDataParams) (*api.TableDataResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}

	start := params.Offset
	if start > len(f.rows) {
		start = len(f.rows)
	}
	end := start + params.Limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	page := make([]map[string]interface{}, end-start)
	copy(page, f.rows[start:end])

	return &api.TableDataResponse{
		TableName:   tableName,
		Columns:     f.columns,
		Data:        page,
		TotalRows:   len(f.rows),
		PreviewRows: len(page),
	}, nil
}

func (f *fakeTableAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTableAPI) shrinkTo(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = f.rows[:n]
}

// blockingTableAPI parks every fetch until the test releases it, so a
// second request can be issued while the first is still in flight.
type blockingTableAPI struct {
	inner   *fakeTableAPI
	proceed chan struct{}
	started chan struct{}
}

func (b *blockingTableAPI) GetTableData(ctx context.Context, tableName string, params client.TableDataParams) (*api.TableDataResponse, error) {
	b.started <- struct{}{}
	<-b.proceed
	return b.inner.GetTableData(ctx, tableName, params)
}

var _ = Describe("PageCache", func() {
	var (
		fake        *fakeTableAPI
		broadcaster *datasets.Broadcaster
		cache       *datasets.PageCache
		key         datasets.ViewKey
	)

	BeforeEach(func() {
		fake = newFakeTableAPI(250)
		broadcaster = datasets.NewBroadcaster()
		cache = datasets.NewPageCache(fake, broadcaster)
		key = datasets.ViewKey{Table: "sales"}
	})

	It("fetches the first page at offset zero", func() {
		view, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(100))
		Expect(view.TotalRows).To(Equal(250))
		Expect(view.HasMore).To(BeTrue())
		Expect(view.Rows[0]["id"]).To(Equal(0))
		Expect(fake.calls[0].Offset).To(Equal(0))
	})

	It("accumulates pages with the offset equal to the rows fetched so far", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(200))
		Expect(view.Rows[100]["id"]).To(Equal(100))
		Expect(fake.calls[1].Offset).To(Equal(100))

		view, err = cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(250))
		Expect(view.HasMore).To(BeFalse())
	})

	It("stops fetching once the view is exhausted", func() {
		for i := 0; i < 3; i++ {
			_, err := cache.Next(context.TODO(), key)
			Expect(err).To(BeNil())
		}
		calls := fake.callCount()

		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(250))
		Expect(fake.callCount()).To(Equal(calls))
	})

	It("restarts at offset zero when the view key changes", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())
		_, err = cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())

		sorted := key
		sorted.SortColumn = "region"
		sorted.SortDirection = "desc"

		view, err := cache.Next(context.TODO(), sorted)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(100))
		last := fake.calls[len(fake.calls)-1]
		Expect(last.Offset).To(Equal(0))
		Expect(last.SortColumn).To(Equal("region"))
	})

	It("restarts at offset zero after a mutation", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())
		_, err = cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())

		broadcaster.OnMutation(datasets.MutationIngest)

		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(100))
		Expect(fake.calls[len(fake.calls)-1].Offset).To(Equal(0))
	})

	It("never reports more fetched rows than the total", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		// the server's view shrank without a mutation event
		fake.shrinkTo(80)

		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(BeNumerically("<=", view.TotalRows))
		Expect(view.Rows).To(HaveLen(view.FetchedCount))
	})

	It("serves the accumulated window without fetching", func() {
		_, ok := cache.Current(key)
		Expect(ok).To(BeFalse())

		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		view, ok := cache.Current(key)
		Expect(ok).To(BeTrue())
		Expect(view.FetchedCount).To(Equal(100))
		Expect(fake.callCount()).To(Equal(1))
	})

	It("marks the current window stale after a mutation", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		broadcaster.OnMutation(datasets.MutationDelete)

		_, ok := cache.Current(key)
		Expect(ok).To(BeFalse())
	})

	It("propagates fetch errors without corrupting the window", func() {
		_, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		fake.mu.Lock()
		fake.err = &client.TransportError{Op: "get table data", StatusCode: 503}
		fake.mu.Unlock()

		_, err = cache.Next(context.TODO(), key)
		Expect(err).NotTo(BeNil())

		fake.mu.Lock()
		fake.err = nil
		fake.mu.Unlock()

		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(200))
	})

	It("drops a Next issued while another fetch is outstanding", func() {
		blocking := &blockingTableAPI{inner: fake, proceed: make(chan struct{}), started: make(chan struct{}, 1)}
		cache = datasets.NewPageCache(blocking, broadcaster)

		type result struct {
			view datasets.View
			err  error
		}
		firstDone := make(chan result, 1)
		go func() {
			v, err := cache.Next(context.TODO(), key)
			firstDone <- result{v, err}
		}()
		Eventually(blocking.started, "5s").Should(Receive())

		// a second Next mid-flight returns without touching the server;
		// there is no window yet, so the view is empty
		view, err := cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(0))

		// a First mid-flight is rejected outright
		_, err = cache.First(context.TODO(), key)
		Expect(err).NotTo(BeNil())

		// neither of the dropped calls reached the server
		Consistently(blocking.started, "50ms").ShouldNot(Receive())

		blocking.proceed <- struct{}{}
		first := <-firstDone
		Expect(first.err).To(BeNil())
		Expect(first.view.FetchedCount).To(Equal(100))

		// with a window in place, a dropped Next returns it unchanged
		secondDone := make(chan result, 1)
		go func() {
			v, err := cache.Next(context.TODO(), key)
			secondDone <- result{v, err}
		}()
		Eventually(blocking.started, "5s").Should(Receive())

		view, err = cache.Next(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(100))
		Consistently(blocking.started, "50ms").ShouldNot(Receive())

		blocking.proceed <- struct{}{}
		second := <-secondDone
		Expect(second.err).To(BeNil())
		Expect(second.view.FetchedCount).To(Equal(200))
	})

	It("hands out row copies, not the cached maps", func() {
		view, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())

		view.Rows[0]["region"] = "mutated"

		cached, ok := cache.Current(key)
		Expect(ok).To(BeTrue())
		Expect(cached.Rows[0]["region"]).To(Equal("r0"))
	})

	It("honors a custom page size", func() {
		cache.SetPageSize(25)

		view, err := cache.First(context.TODO(), key)
		Expect(err).To(BeNil())
		Expect(view.FetchedCount).To(Equal(25))
		Expect(fake.calls[0].Limit).To(Equal(25))
	})
})
