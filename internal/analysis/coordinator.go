// Package analysis drives analysis jobs on a quelmap server: submission
// into spaces, position-addressed re-submission, and polling of report
// snapshots until a job reaches a terminal state.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/client"
	"github.com/quelmap-inc/quelmap/internal/history"
)

// AppendJob is the Index value that appends a new job to the end of the
// thread instead of replacing an existing position.
const AppendJob = -1

const spaceCacheTTL = 5 * time.Minute

// SpaceAPI is the part of the service client the coordinator needs.
type SpaceAPI interface {
	CreateSpace(ctx context.Context) (string, error)
	GetSpace(ctx context.Context, spaceID string) ([]string, error)
	StartAnalysis(ctx context.Context, req api.StartAnalysisRequest) (*api.StartAnalysisResponse, error)
}

// SubmitRequest describes one job submission. Index AppendJob appends;
// Index >= 0 replaces the job at that position in the thread.
type SubmitRequest struct {
	SpaceID string
	Query   string
	Tables  []string
	Mode    api.AnalysisMode
	Model   string
	Index   int
}

// SubmitResult is the outcome of a submission. BusinessError carries a
// server-reported condition (reported, never thrown); it is mutually
// exclusive with JobID.
type SubmitResult struct {
	JobID         string
	BusinessError string
}

type cachedSpace struct {
	jobIDs    []string
	fetchedAt time.Time
}

// Coordinator creates spaces and submits jobs into them, maintaining the
// optimistic history entry for each submission. It keeps a TTL'd cache of
// each space's job-id list; the server remains the source of truth.
type Coordinator struct {
	client SpaceAPI
	ledger *history.Ledger

	mu     sync.Mutex
	spaces map[string]cachedSpace
	now    func() time.Time
}

func NewCoordinator(c SpaceAPI, ledger *history.Ledger) *Coordinator {
	return &Coordinator{
		client: c,
		ledger: ledger,
		spaces: make(map[string]cachedSpace),
		now:    time.Now,
	}
}

// NewSpace creates a new analysis space. Not idempotent: callers must not
// retry blindly, a duplicate space may result.
func (c *Coordinator) NewSpace(ctx context.Context) (string, error) {
	return c.client.CreateSpace(ctx)
}

// Submit validates, records the optimistic history entry, and submits the
// job. The history entry is a tentative record: it is rolled back (or its
// loading flag cleared, when the space already had one) on any failure
// path, so no entry is left loading forever.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &client.ValidationError{Message: "query must not be empty"}
	}
	if len(req.Tables) == 0 {
		return nil, &client.ValidationError{Message: "at least one table must be selected"}
	}

	mode := req.Mode
	if mode == "" {
		mode = api.ModeStandard
	}

	hadEntry := c.hasEntry(req.SpaceID)
	if err := c.ledger.Add(req.SpaceID, req.Query); err != nil {
		return nil, fmt.Errorf("recording history entry: %w", err)
	}

	resp, err := c.client.StartAnalysis(ctx, api.StartAnalysisRequest{
		SpaceID: req.SpaceID,
		Query:   req.Query,
		Tables:  req.Tables,
		Mode:    string(mode),
		Model:   req.Model,
		Index:   req.Index,
	})
	if err != nil {
		c.rollback(req.SpaceID, hadEntry)
		return nil, err
	}
	if resp.Error != "" {
		// reported failure, not a transport one: keep the entry but
		// stop showing it as loading
		_ = c.ledger.SetLoading(req.SpaceID, false)
		return &SubmitResult{BusinessError: resp.Error}, nil
	}

	// the thread changed; the cached job-id list is no longer valid
	c.invalidateSpace(req.SpaceID)

	return &SubmitResult{JobID: resp.ID}, nil
}

// SpaceJobs returns the ordered job ids of the space, served from the TTL
// cache when fresh.
func (c *Coordinator) SpaceJobs(ctx context.Context, spaceID string) ([]string, error) {
	c.mu.Lock()
	cached, ok := c.spaces[spaceID]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetchedAt) < spaceCacheTTL {
		return cached.jobIDs, nil
	}
	return c.refreshSpace(ctx, spaceID)
}

// JobAt re-fetches the space and returns the job id occupying the given
// position. After an edit the id at that position is new (the server drops
// the thread from the edited index and appends the replacement), so the
// cache is always bypassed here.
func (c *Coordinator) JobAt(ctx context.Context, spaceID string, index int) (string, error) {
	jobIDs, err := c.refreshSpace(ctx, spaceID)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(jobIDs) {
		return "", fmt.Errorf("space %s has no job at position %d", spaceID, index)
	}
	return jobIDs[index], nil
}

func (c *Coordinator) refreshSpace(ctx context.Context, spaceID string) ([]string, error) {
	jobIDs, err := c.client.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.spaces[spaceID] = cachedSpace{jobIDs: jobIDs, fetchedAt: c.now()}
	c.mu.Unlock()
	return jobIDs, nil
}

func (c *Coordinator) invalidateSpace(spaceID string) {
	c.mu.Lock()
	delete(c.spaces, spaceID)
	c.mu.Unlock()
}

func (c *Coordinator) hasEntry(spaceID string) bool {
	for _, e := range c.ledger.Entries() {
		if e.ID == spaceID {
			return true
		}
	}
	return false
}

// rollback undoes the optimistic entry after a transport failure. A
// brand-new entry is removed; an entry that existed before this submission
// is kept but no longer marked loading.
func (c *Coordinator) rollback(spaceID string, hadEntry bool) {
	if hadEntry {
		_ = c.ledger.SetLoading(spaceID, false)
		return
	}
	_ = c.ledger.Remove(spaceID)
}
