package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/citydrop/dispatch/core/errs"
)

type scriptedClient struct {
	results []Result
	calls   int
}

func (s *scriptedClient) Submit(context.Context, Problem) (string, error) { return "p1", nil }

func (s *scriptedClient) Status(context.Context, string) (Result, error) {
	r := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return r, nil
}

func TestAwait_SolvedAfterRetries(t *testing.T) {
	c := &scriptedClient{results: []Result{
		{State: StateSolving},
		{State: StateSolving},
		{State: StateNotSolving, Assigned: []Assignment{{DriverID: "d1", OrderIDs: []string{"o1"}}}},
	}}
	res, err := Await(context.Background(), c, "p1", 5, time.Millisecond)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !res.Solved() || len(res.Assigned) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAwait_BudgetExhausted(t *testing.T) {
	c := &scriptedClient{results: []Result{{State: StateSolving}}}
	_, err := Await(context.Background(), c, "p1", 3, time.Millisecond)
	if !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestAwait_NoDriversIsSolved(t *testing.T) {
	c := &scriptedClient{results: []Result{{State: StateNoDrivers, Unassigned: []string{"o1"}}}}
	res, err := Await(context.Background(), c, "p1", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !res.Solved() || len(res.Unassigned) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAwait_ContextCancelled(t *testing.T) {
	c := &scriptedClient{results: []Result{{State: StateSolving}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Await(ctx, c, "p1", 3, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}
