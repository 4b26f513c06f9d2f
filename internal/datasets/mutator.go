package datasets

import (
	"context"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
)

// MutationAPI is the part of the service client that changes server-held
// tables.
type MutationAPI interface {
	RenameTable(ctx context.Context, tableName, newTableName string) error
	DeleteTable(ctx context.Context, tableName string) error
	UploadFiles(ctx context.Context, paths []string) (*api.ConnectionResponse, error)
	ConnectPostgres(ctx context.Context, connectionString string) (*api.ConnectionResponse, error)
	UploadSQLite(ctx context.Context, path string) (*api.ConnectionResponse, error)
}

// Mutator funnels every table mutation through the broadcaster so cached
// catalogs and page windows go stale the moment a mutation completes.
type Mutator struct {
	client      MutationAPI
	broadcaster *Broadcaster
}

func NewMutator(c MutationAPI, b *Broadcaster) *Mutator {
	return &Mutator{client: c, broadcaster: b}
}

func (m *Mutator) RenameTable(ctx context.Context, tableName, newTableName string) error {
	if err := m.client.RenameTable(ctx, tableName, newTableName); err != nil {
		return err
	}
	m.broadcaster.OnMutation(MutationRename)
	return nil
}

func (m *Mutator) DeleteTable(ctx context.Context, tableName string) error {
	if err := m.client.DeleteTable(ctx, tableName); err != nil {
		return err
	}
	m.broadcaster.OnMutation(MutationDelete)
	return nil
}

func (m *Mutator) UploadFiles(ctx context.Context, paths []string) (*api.ConnectionResponse, error) {
	resp, err := m.client.UploadFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	m.broadcaster.OnMutation(MutationIngest)
	return resp, nil
}

func (m *Mutator) ConnectPostgres(ctx context.Context, connectionString string) (*api.ConnectionResponse, error) {
	resp, err := m.client.ConnectPostgres(ctx, connectionString)
	if err != nil {
		return nil, err
	}
	m.broadcaster.OnMutation(MutationIngest)
	return resp, nil
}

func (m *Mutator) UploadSQLite(ctx context.Context, path string) (*api.ConnectionResponse, error) {
	resp, err := m.client.UploadSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	m.broadcaster.OnMutation(MutationIngest)
	return resp, nil
}
