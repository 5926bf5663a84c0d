package scenarios

import (
	"context"
	"testing"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/infra/logger"
	"github.com/citydrop/dispatch/infra/memstore"
	"github.com/citydrop/dispatch/infra/mqtt"
	"github.com/citydrop/dispatch/internal/eventbus"
)

type scriptedSolver struct {
	proposals []ProposalDef
}

func (s *scriptedSolver) Submit(_ context.Context, p solver.Problem) (string, error) {
	return "qa-problem", nil
}

func (s *scriptedSolver) Status(_ context.Context, _ string) (solver.Result, error) {
	if len(s.proposals) == 0 {
		return solver.Result{State: solver.StateNoDrivers}, nil
	}
	res := solver.Result{State: solver.StateNotSolving}
	for _, p := range s.proposals {
		res.Assigned = append(res.Assigned, solver.Assignment{
			DriverID: p.DriverID,
			OrderIDs: p.Orders,
		})
	}
	return res, nil
}

// RunScenario executes the scenario and checks the expected status counts.
func RunScenario(t *testing.T, sc *Scenario) {
	ctx := context.Background()
	db := memstore.New()
	ch := mqtt.NewMockChannel()
	bus := eventbus.New()

	mgr, err := dispatch.NewManager(dispatch.Config{}, db.Orders(), db.Locks(), &scriptedSolver{proposals: sc.Proposals}, ch, bus, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, o := range sc.Orders {
		if err := db.Orders().Create(ctx, o.ToModel()); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}
	for _, id := range sc.CancelBefore {
		if _, err := mgr.Cancel(ctx, id); err != nil {
			t.Fatalf("cancel %s: %v", id, err)
		}
	}

	if _, err := mgr.Ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	rejects := make(map[string]bool, len(sc.Reject))
	for _, id := range sc.Reject {
		rejects[id] = true
	}
	for _, p := range sc.Proposals {
		job, ok := ch.LastJob(p.DriverID)
		if !ok {
			continue
		}
		evType := channel.EventAccepted
		if rejects[p.DriverID] {
			evType = channel.EventRejected
		}
		ch.Inject(channel.StatusEvent{Type: evType, DriverID: p.DriverID, JobID: job.JobID})
	}

	counts := map[model.Status]int{}
	for _, st := range []model.Status{model.StatusUnassigned, model.StatusAccepted, model.StatusCancelled} {
		orders, err := db.Orders().ListByStatus(ctx, st)
		if err != nil {
			t.Fatalf("list %s: %v", st, err)
		}
		counts[st] = len(orders)
	}
	if counts[model.StatusAccepted] != sc.Expected.Accepted {
		t.Errorf("scenario %s: accepted = %d, want %d", sc.Name, counts[model.StatusAccepted], sc.Expected.Accepted)
	}
	if counts[model.StatusUnassigned] != sc.Expected.Unassigned {
		t.Errorf("scenario %s: unassigned = %d, want %d", sc.Name, counts[model.StatusUnassigned], sc.Expected.Unassigned)
	}
	if counts[model.StatusCancelled] != sc.Expected.Cancelled {
		t.Errorf("scenario %s: cancelled = %d, want %d", sc.Name, counts[model.StatusCancelled], sc.Expected.Cancelled)
	}
}
