package datasets

import (
	"context"
	"sync"
	"time"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
)

const catalogTTL = 5 * time.Minute

// TableListAPI is the part of the service client the catalog needs.
type TableListAPI interface {
	GetTableList(ctx context.Context) (*api.TableListResponse, error)
}

// TableDescriptor names one server-held table and the route under which
// its preview is served.
type TableDescriptor struct {
	Name  string
	Route string
}

// Catalog caches the list of server-held tables. The whole collection is
// invalidated as a unit: by TTL expiry or by any mutation epoch bump.
type Catalog struct {
	client      TableListAPI
	broadcaster *Broadcaster

	mu        sync.Mutex
	tables    []TableDescriptor
	fetchedAt time.Time
	epoch     uint64
	loaded    bool
	now       func() time.Time
}

func NewCatalog(c TableListAPI, b *Broadcaster) *Catalog {
	return &Catalog{
		client:      c,
		broadcaster: b,
		now:         time.Now,
	}
}

// Tables returns the catalog, refetching when the cached copy is absent,
// older than the TTL, or stamped with a stale epoch.
func (c *Catalog) Tables(ctx context.Context) ([]TableDescriptor, error) {
	c.mu.Lock()
	fresh := c.loaded &&
		c.epoch >= c.broadcaster.Epoch() &&
		c.now().Sub(c.fetchedAt) < catalogTTL
	if fresh {
		out := make([]TableDescriptor, len(c.tables))
		copy(out, c.tables)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	epoch := c.broadcaster.Epoch()
	resp, err := c.client.GetTableList(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]TableDescriptor, 0, len(resp.TableNames))
	for _, name := range resp.TableNames {
		tables = append(tables, TableDescriptor{
			Name:  name,
			Route: "/table/" + name,
		})
	}

	c.mu.Lock()
	c.tables = tables
	c.fetchedAt = c.now()
	c.epoch = epoch
	c.loaded = true
	c.mu.Unlock()

	out := make([]TableDescriptor, len(tables))
	copy(out, tables)
	return out, nil
}
