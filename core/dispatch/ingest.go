package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citydrop/dispatch/core/cluster"
	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/logger"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/core/store"
)

// Ingestor drives one batching cycle: it selects unassigned orders, tags
// them into a batch, clusters them geographically, runs the solver round
// trip and hands each proposal to the committer under a driver lock.
//
// A solver failure unwinds only the batch tags; the orders themselves stay
// UNASSIGNED and compete again in the next cycle.
type Ingestor struct {
	orders    store.OrderStore
	locks     *LockManager
	solver    solver.Client
	committer *Committer
	metrics   coremetrics.Sink
	log       logger.Logger
	cfg       Config
	now       func() time.Time
}

// IngestResult summarizes one cycle.
type IngestResult struct {
	BatchID   string
	Batched   int
	Jobs      int
	Committed int
}

// RunCycle executes one full ingest cycle. An empty pool is a successful
// no-op.
func (g *Ingestor) RunCycle(ctx context.Context) (IngestResult, error) {
	var res IngestResult

	pool, err := g.orders.ListByStatus(ctx, model.StatusUnassigned)
	if err != nil {
		return res, err
	}
	now := g.now()
	candidates := make([]model.Order, 0, len(pool))
	for _, o := range pool {
		if o.BatchID != "" || o.Expired(now) {
			continue
		}
		candidates = append(candidates, o)
		if len(candidates) == g.cfg.MaxBatchSize {
			break
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	batchID := uuid.NewString()
	batch := make([]model.Order, 0, len(candidates))
	for _, o := range candidates {
		if err := g.orders.MarkBatched(ctx, o.ID, batchID); err != nil {
			if errors.Is(err, errs.ErrConflict) || errors.Is(err, errs.ErrNotFound) {
				// Claimed by a concurrent cycle or cancelled; drop it.
				continue
			}
			g.unwind(ctx, batch)
			return res, err
		}
		o.BatchID = batchID
		batch = append(batch, o)
	}
	if len(batch) == 0 {
		return res, nil
	}
	res.BatchID = batchID
	res.Batched = len(batch)

	clusters := cluster.Group(batch, g.cfg.ClusterBiasMeters)
	g.log.Infof("batch %s: %d orders in %d clusters", batchID, len(batch), len(clusters))

	problem := solver.Problem{BatchID: batchID, Clusters: clusters, Orders: batch}
	submitted := g.now()
	problemID, err := g.solver.Submit(ctx, problem)
	if err != nil {
		g.log.Errorf("solver submit for batch %s failed: %v", batchID, err)
		g.unwind(ctx, batch)
		return res, fmt.Errorf("submit batch %s: %w", batchID, err)
	}
	sol, err := solver.Await(ctx, g.solver, problemID,
		g.cfg.PollAttempts, time.Duration(g.cfg.PollIntervalMS)*time.Millisecond)
	g.recordSolver(problemID, sol, len(batch), submitted)
	if err != nil {
		g.log.Errorf("solver poll for problem %s failed: %v", problemID, err)
		g.unwind(ctx, batch)
		return res, fmt.Errorf("await problem %s: %w", problemID, err)
	}
	if sol.State == solver.StateNoDrivers {
		g.log.Warnf("no drivers available for batch %s, deferring %d orders", batchID, len(batch))
		g.unwind(ctx, batch)
		return res, nil
	}

	handled := make(map[string]bool, len(batch))
	for _, asn := range sol.Assigned {
		for _, id := range asn.OrderIDs {
			handled[id] = true
		}
		jobID := uuid.NewString()
		if err := g.locks.Acquire(ctx, asn.DriverID, asn.OrderIDs); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				g.clearBatchIDs(ctx, asn.OrderIDs)
				continue
			}
			// A transient store error must not strand the rest of the
			// batch behind stale tags.
			remaining := append([]string(nil), asn.OrderIDs...)
			for _, o := range batch {
				if !handled[o.ID] {
					remaining = append(remaining, o.ID)
				}
			}
			g.clearBatchIDs(ctx, remaining)
			return res, fmt.Errorf("acquire driver %s: %w", asn.DriverID, err)
		}
		cres, err := g.committer.Commit(ctx, asn, jobID)
		if err != nil {
			g.log.Errorf("commit job %s: %v", jobID, err)
			g.releaseUntried(ctx, asn, cres)
		}
		if len(cres.Committed) > 0 {
			res.Jobs++
			res.Committed += len(cres.Committed)
		}
	}

	for _, id := range sol.Unassigned {
		handled[id] = true
	}
	g.clearBatchIDs(ctx, sol.Unassigned)
	var leftovers []string
	for _, o := range batch {
		if !handled[o.ID] {
			leftovers = append(leftovers, o.ID)
		}
	}
	if len(leftovers) > 0 {
		g.log.Warnf("solver omitted %d orders of batch %s, returning them to the pool", len(leftovers), batchID)
		g.clearBatchIDs(ctx, leftovers)
	}

	g.log.Infof("cycle for batch %s committed %d orders across %d jobs", batchID, res.Committed, res.Jobs)
	return res, nil
}

// releaseUntried returns to the pool the orders of a proposal the committer
// never reached: they lose both the batch tag and their slot in the driver
// lock, while the committed ones stay ASSIGNED for the sweeper to judge.
func (g *Ingestor) releaseUntried(ctx context.Context, asn solver.Assignment, cres CommitResult) {
	tried := make(map[string]bool, len(cres.Committed)+len(cres.Skipped))
	for _, id := range cres.Committed {
		tried[id] = true
	}
	for _, id := range cres.Skipped {
		tried[id] = true
	}
	var untried []string
	for _, id := range asn.OrderIDs {
		if !tried[id] {
			untried = append(untried, id)
		}
	}
	if len(untried) == 0 {
		return
	}
	g.clearBatchIDs(ctx, untried)
	if err := g.locks.ReleaseOrders(ctx, asn.DriverID, untried); err != nil {
		g.log.Errorf("release untried orders of driver %s: %v", asn.DriverID, err)
	}
}

func (g *Ingestor) unwind(ctx context.Context, batch []model.Order) {
	ids := make([]string, 0, len(batch))
	for _, o := range batch {
		ids = append(ids, o.ID)
	}
	g.clearBatchIDs(ctx, ids)
}

func (g *Ingestor) clearBatchIDs(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := g.orders.ClearBatch(ctx, id); err != nil {
			g.log.Errorf("clear batch tag of order %s: %v", id, err)
		}
	}
}

func (g *Ingestor) recordSolver(problemID string, sol solver.Result, orders int, submitted time.Time) {
	rec, ok := g.metrics.(coremetrics.SolverRecorder)
	if !ok {
		return
	}
	if err := rec.RecordSolver(coremetrics.SolverRecord{
		ProblemID: problemID,
		State:     string(sol.State),
		Orders:    orders,
		Drivers:   len(sol.Assigned),
		Latency:   g.now().Sub(submitted),
		Time:      g.now(),
	}); err != nil {
		g.log.Errorf("solver metrics error: %v", err)
	}
}
