// Package memstore provides an in-memory implementation of the record store
// with per-item compare-and-swap semantics. It backs unit tests and local
// development; production deployments use the sqlite store or another
// conditional-write capable backend.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

// DB holds orders and driver locks behind a single mutex, making every
// read-check-write sequence atomic, which is exactly the conditional-write
// guarantee the core relies on.
type DB struct {
	mu     sync.Mutex
	orders map[string]model.Order
	locks  map[string]model.DriverLock
	now    func() time.Time
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		orders: make(map[string]model.Order),
		locks:  make(map[string]model.DriverLock),
		now:    time.Now,
	}
}

// SetClock overrides the store's clock, for tests.
func (d *DB) SetClock(now func() time.Time) { d.now = now }

// Orders returns the order store view.
func (d *DB) Orders() store.OrderStore { return &orderStore{d} }

// Locks returns the lock store view.
func (d *DB) Locks() store.LockStore { return &lockStore{d} }

type orderStore struct{ d *DB }

var _ store.OrderStore = (*orderStore)(nil)

func (s *orderStore) Get(_ context.Context, id string) (model.Order, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return model.Order{}, errs.ErrNotFound
	}
	return o, nil
}

func (s *orderStore) Create(_ context.Context, o model.Order) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.orders[o.ID]; ok {
		return errs.ErrConflict
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = s.d.now().UnixMilli()
	}
	o.UpdatedAt = o.CreatedAt
	s.d.orders[o.ID] = o
	return nil
}

func (s *orderStore) MarkBatched(_ context.Context, id, batchID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != model.StatusUnassigned || o.BatchID != "" {
		return errs.ErrConflict
	}
	o.BatchID = batchID
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) ClearBatch(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.BatchID == "" {
		return nil
	}
	o.BatchID = ""
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) Assign(_ context.Context, id string, a store.Assignment) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != model.StatusUnassigned {
		return errs.ErrConflict
	}
	o.Status = model.StatusAssigned
	o.DriverID = a.DriverID
	o.DriverIdentity = a.DriverIdentity
	o.JobID = a.JobID
	o.AssignedAt = a.AssignedAt
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) Accept(_ context.Context, id, driverID, jobID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != model.StatusAssigned || o.DriverID != driverID || o.JobID != jobID {
		return errs.ErrConflict
	}
	o.Status = model.StatusAccepted
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) Release(_ context.Context, id, jobID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != model.StatusAssigned || o.JobID != jobID {
		return errs.ErrConflict
	}
	o.Status = model.StatusUnassigned
	o.DriverID = ""
	o.DriverIdentity = ""
	o.JobID = ""
	o.BatchID = ""
	o.AssignedAt = 0
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) Cancel(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != model.StatusUnassigned {
		return errs.ErrConflict
	}
	o.Status = model.StatusCancelled
	o.BatchID = ""
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) Finish(_ context.Context, id, driverID, jobID string, st model.Status) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	active := o.Status == model.StatusAssigned || o.Status == model.StatusAccepted
	if !active || o.DriverID != driverID || o.JobID != jobID {
		return errs.ErrConflict
	}
	o.Status = st
	if st.Terminal() {
		o.DriverID = ""
		o.DriverIdentity = ""
	}
	o.UpdatedAt = s.d.now().UnixMilli()
	s.d.orders[id] = o
	return nil
}

func (s *orderStore) ListByStatus(_ context.Context, st model.Status) ([]model.Order, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []model.Order
	for _, o := range s.d.orders {
		if o.Status == st {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *orderStore) ListByJob(_ context.Context, jobID string) ([]model.Order, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []model.Order
	for _, o := range s.d.orders {
		if o.JobID == jobID {
			out = append(out, o)
		}
	}
	return out, nil
}

type lockStore struct{ d *DB }

var _ store.LockStore = (*lockStore)(nil)

func (s *lockStore) Get(_ context.Context, driverID string) (model.DriverLock, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	l, ok := s.d.locks[driverID]
	if !ok {
		return model.DriverLock{}, errs.ErrNotFound
	}
	return l, nil
}

func (s *lockStore) Acquire(_ context.Context, driverID string, orderIDs []string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	l, ok := s.d.locks[driverID]
	if ok && l.Locked {
		return errs.ErrConflict
	}
	s.d.locks[driverID] = model.DriverLock{
		DriverID: driverID,
		Locked:   len(orderIDs) > 0,
		Orders:   append([]string(nil), orderIDs...),
	}
	return nil
}

func (s *lockStore) Release(_ context.Context, driverID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	l, ok := s.d.locks[driverID]
	if !ok || !l.Locked {
		return nil
	}
	s.d.locks[driverID] = model.DriverLock{DriverID: driverID}
	return nil
}

func (s *lockStore) RemoveOrders(_ context.Context, driverID string, orderIDs []string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	l, ok := s.d.locks[driverID]
	if !ok || !l.Locked {
		return nil
	}
	drop := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		drop[id] = true
	}
	var kept []string
	for _, id := range l.Orders {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.d.locks[driverID] = model.DriverLock{DriverID: driverID, Locked: len(kept) > 0, Orders: kept}
	return nil
}
