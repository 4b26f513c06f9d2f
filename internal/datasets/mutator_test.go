package datasets_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/client"
	"github.com/quelmap-inc/quelmap/internal/datasets"
)

type fakeMutationAPI struct {
	err error
}

func (f *fakeMutationAPI) RenameTable(ctx context.Context, tableName, newTableName string) error {
	return f.err
}

func (f *fakeMutationAPI) DeleteTable(ctx context.Context, tableName string) error {
	return f.err
}

func (f *fakeMutationAPI) UploadFiles(ctx context.Context, paths []string) (*api.ConnectionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.ConnectionResponse{TableCount: len(paths)}, nil
}

func (f *fakeMutationAPI) ConnectPostgres(ctx context.Context, connectionString string) (*api.ConnectionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.ConnectionResponse{TableCount: 1}, nil
}

func (f *fakeMutationAPI) UploadSQLite(ctx context.Context, path string) (*api.ConnectionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.ConnectionResponse{TableCount: 1}, nil
}

var _ = Describe("Mutator", func() {
	var (
		fake        *fakeMutationAPI
		broadcaster *datasets.Broadcaster
		mutator     *datasets.Mutator
	)

	BeforeEach(func() {
		fake = &fakeMutationAPI{}
		broadcaster = datasets.NewBroadcaster()
		mutator = datasets.NewMutator(fake, broadcaster)
	})

	It("bumps the epoch once per successful mutation", func() {
		Expect(mutator.RenameTable(context.TODO(), "sales", "sales_2025")).To(BeNil())
		Expect(broadcaster.Epoch()).To(Equal(uint64(1)))

		Expect(mutator.DeleteTable(context.TODO(), "sales_2025")).To(BeNil())
		Expect(broadcaster.Epoch()).To(Equal(uint64(2)))

		_, err := mutator.UploadFiles(context.TODO(), []string{"sales.csv"})
		Expect(err).To(BeNil())
		_, err = mutator.ConnectPostgres(context.TODO(), "postgres://db")
		Expect(err).To(BeNil())
		_, err = mutator.UploadSQLite(context.TODO(), "app.db")
		Expect(err).To(BeNil())
		Expect(broadcaster.Epoch()).To(Equal(uint64(5)))
	})

	It("leaves the epoch untouched when the mutation fails", func() {
		fake.err = &client.TransportError{Op: "rename table", StatusCode: 503}

		Expect(mutator.RenameTable(context.TODO(), "sales", "sales_2025")).NotTo(BeNil())
		Expect(mutator.DeleteTable(context.TODO(), "sales")).NotTo(BeNil())
		_, err := mutator.UploadFiles(context.TODO(), []string{"sales.csv"})
		Expect(err).NotTo(BeNil())
		Expect(broadcaster.Epoch()).To(Equal(uint64(0)))
	})
})
