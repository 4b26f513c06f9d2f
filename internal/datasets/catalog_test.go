package datasets_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/datasets"
)

type fakeTableListAPI struct {
	mu    sync.Mutex
	names []string
	err   error
	calls int
}

func (f *fakeTableListAPI) GetTableList(ctx context.Context) (*api.TableListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &api.TableListResponse{
		TableCount: len(f.names),
		TableNames: f.names,
	}, nil
}

func (f *fakeTableListAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ = Describe("Catalog", func() {
	var (
		fake        *fakeTableListAPI
		broadcaster *datasets.Broadcaster
		catalog     *datasets.Catalog
	)

	BeforeEach(func() {
		fake = &fakeTableListAPI{names: []string{"sales", "customers"}}
		broadcaster = datasets.NewBroadcaster()
		catalog = datasets.NewCatalog(fake, broadcaster)
	})

	It("derives one descriptor per table with its preview route", func() {
		tables, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())
		Expect(tables).To(Equal([]datasets.TableDescriptor{
			{Name: "sales", Route: "/table/sales"},
			{Name: "customers", Route: "/table/customers"},
		}))
	})

	It("serves repeated reads from the cache", func() {
		_, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())
		_, err = catalog.Tables(context.TODO())
		Expect(err).To(BeNil())
		Expect(fake.callCount()).To(Equal(1))
	})

	It("refetches the whole collection after a mutation", func() {
		_, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())

		fake.mu.Lock()
		fake.names = []string{"sales", "customers", "orders"}
		fake.mu.Unlock()
		broadcaster.OnMutation(datasets.MutationIngest)

		tables, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())
		Expect(tables).To(HaveLen(3))
		Expect(fake.callCount()).To(Equal(2))
	})

	It("leaves the stale cache in place when the refetch fails", func() {
		_, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())

		broadcaster.OnMutation(datasets.MutationDelete)
		fake.mu.Lock()
		fake.err = context.DeadlineExceeded
		fake.mu.Unlock()

		_, err = catalog.Tables(context.TODO())
		Expect(err).NotTo(BeNil())

		fake.mu.Lock()
		fake.err = nil
		fake.mu.Unlock()

		tables, err := catalog.Tables(context.TODO())
		Expect(err).To(BeNil())
		Expect(tables).To(HaveLen(2))
	})
})
