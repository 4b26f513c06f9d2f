package datasets

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/client"
)

// DefaultPageSize is the row limit used when a ViewKey doesn't override it.
const DefaultPageSize = 100

// TableDataAPI is the part of the service client the page cache needs.
type TableDataAPI interface {
	GetTableData(ctx context.Context, tableName string, params client.TableDataParams) (*api.TableDataResponse, error)
}

// ViewKey identifies one logical paginated view. Changing any field means
// a different view: accumulated pages from the old view are never mixed
// with pages of the new one.
type ViewKey struct {
	Table         string
	SortColumn    string
	SortDirection string
	FilterColumn  string
	FilterValue   string
}

// View is a read-only snapshot of the accumulated window handed to
// callers.
type View struct {
	Columns      []string
	Rows         []map[string]interface{}
	FetchedCount int
	TotalRows    int
	HasMore      bool
}

// window accumulates the fetched pages of one view. Row identity is
// positional; correctness depends on the server returning a stable
// ordering for a fixed key.
type window struct {
	key     ViewKey
	columns []string
	rows    []map[string]interface{}
	fetched int
	total   int
	epoch   uint64
}

// view snapshots the window. Rows are copied map by map so a caller
// mutating the result cannot corrupt the cached pages.
func (w *window) view() View {
	rows := make([]map[string]interface{}, len(w.rows))
	for i, row := range w.rows {
		cp := make(map[string]interface{}, len(row))
		for k, v := range row {
			cp[k] = v
		}
		rows[i] = cp
	}
	cols := make([]string, len(w.columns))
	copy(cols, w.columns)
	return View{
		Columns:      cols,
		Rows:         rows,
		FetchedCount: w.fetched,
		TotalRows:    w.total,
		HasMore:      w.fetched < w.total,
	}
}

// PageCache incrementally loads one table view. A view-key change or a
// stale mutation epoch discards the window and restarts at offset zero.
// Page fetches for the view are strictly sequential: a Next while another
// fetch is outstanding is dropped.
type PageCache struct {
	client      TableDataAPI
	broadcaster *Broadcaster
	pageSize    int

	mu       sync.Mutex
	win      *window
	inflight bool
}

func NewPageCache(c TableDataAPI, b *Broadcaster) *PageCache {
	return &PageCache{
		client:      c,
		broadcaster: b,
		pageSize:    DefaultPageSize,
	}
}

// SetPageSize overrides the page limit for subsequent first-page fetches.
func (p *PageCache) SetPageSize(n int) {
	if n > 0 {
		p.pageSize = n
	}
}

// First discards any accumulated window for the key and fetches page one
// at offset zero.
func (p *PageCache) First(ctx context.Context, key ViewKey) (View, error) {
	p.mu.Lock()
	if p.inflight {
		p.mu.Unlock()
		return View{}, fmt.Errorf("datasets: a page fetch is already in progress")
	}
	p.inflight = true
	p.mu.Unlock()

	return p.fetch(ctx, key, 0)
}

// Next fetches the next page of the view at offset equal to the rows
// fetched so far. When the key changed or the window is stale it behaves
// like First. When no more rows remain, or a fetch is already outstanding,
// the current view is returned unchanged.
func (p *PageCache) Next(ctx context.Context, key ViewKey) (View, error) {
	p.mu.Lock()
	if p.inflight {
		// a concurrent Next would double-count the offset; drop it
		var v View
		if p.win != nil && p.win.key == key {
			v = p.win.view()
		}
		p.mu.Unlock()
		return v, nil
	}

	w := p.win
	if w == nil || w.key != key || w.epoch < p.broadcaster.Epoch() {
		p.inflight = true
		p.mu.Unlock()
		return p.fetch(ctx, key, 0)
	}
	if w.fetched >= w.total {
		v := w.view()
		p.mu.Unlock()
		return v, nil
	}
	offset := w.fetched
	p.inflight = true
	p.mu.Unlock()

	return p.fetch(ctx, key, offset)
}

// Current returns the accumulated view without fetching. The second return
// is false when there is no fresh window for the key.
func (p *PageCache) Current(key ViewKey) (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.win == nil || p.win.key != key || p.win.epoch < p.broadcaster.Epoch() {
		return View{}, false
	}
	return p.win.view(), true
}

func (p *PageCache) fetch(ctx context.Context, key ViewKey, offset int) (View, error) {
	// epoch is taken before the fetch so a mutation racing with it marks
	// the window stale on the next access
	epoch := p.broadcaster.Epoch()

	resp, err := p.client.GetTableData(ctx, key.Table, client.TableDataParams{
		Limit:         p.pageSize,
		Offset:        offset,
		SortColumn:    key.SortColumn,
		SortDirection: key.SortDirection,
		FilterColumn:  key.FilterColumn,
		FilterValue:   key.FilterValue,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight = false
	if err != nil {
		return View{}, err
	}

	if offset == 0 || p.win == nil || p.win.key != key {
		p.win = &window{key: key, epoch: epoch}
	} else {
		p.win.epoch = epoch
	}

	p.win.columns = resp.Columns
	p.win.rows = append(p.win.rows, resp.Data...)
	p.win.fetched += len(resp.Data)
	p.win.total = resp.TotalRows

	if p.win.fetched > p.win.total {
		// the server's view shrank under us without a mutation event;
		// drop the excess so fetched never exceeds total
		zap.S().Named("datasets").Warnf("view %q returned more rows (%d) than total (%d), truncating",
			key.Table, p.win.fetched, p.win.total)
		p.win.rows = p.win.rows[:p.win.total]
		p.win.fetched = p.win.total
	}

	return p.win.view(), nil
}
