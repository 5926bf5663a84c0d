// Package sqlitestore persists orders and driver locks in SQLite. Every
// mutation is a conditional UPDATE whose WHERE clause encodes the
// precondition; zero affected rows means the caller lost the race. SQLite
// serializes writers, so each statement is atomic with its condition.
// Read-modify-write operations re-check the state they read in the WHERE
// clause and retry on a lost race.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	driver_id       TEXT NOT NULL DEFAULT '',
	driver_identity TEXT NOT NULL DEFAULT '',
	job_id          TEXT NOT NULL DEFAULT '',
	batch_id        TEXT NOT NULL DEFAULT '',
	provider_id     TEXT NOT NULL DEFAULT '',
	pickup_lat      REAL NOT NULL DEFAULT 0,
	pickup_lon      REAL NOT NULL DEFAULT 0,
	dropoff_lat     REAL NOT NULL DEFAULT 0,
	dropoff_lon     REAL NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0,
	assigned_at     INTEGER NOT NULL DEFAULT 0,
	expires_at      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_job ON orders(job_id);
CREATE TABLE IF NOT EXISTS driver_locks (
	driver_id TEXT PRIMARY KEY,
	locked    INTEGER NOT NULL DEFAULT 0,
	orders    TEXT NOT NULL DEFAULT '[]'
);`

// DB wraps the SQLite handle and exposes the store views.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent CAS attempts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// SetClock overrides the store's clock, for tests.
func (d *DB) SetClock(now func() time.Time) { d.now = now }

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Orders returns the order store view.
func (d *DB) Orders() store.OrderStore { return &orderStore{d} }

// Locks returns the lock store view.
func (d *DB) Locks() store.LockStore { return &lockStore{d} }

type orderStore struct{ d *DB }

var _ store.OrderStore = (*orderStore)(nil)

const orderCols = `id, status, driver_id, driver_identity, job_id, batch_id, provider_id,
	pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, created_at, updated_at, assigned_at, expires_at`

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &status, &o.DriverID, &o.DriverIdentity, &o.JobID, &o.BatchID, &o.ProviderID,
		&o.Pickup.Lat, &o.Pickup.Lon, &o.Dropoff.Lat, &o.Dropoff.Lon,
		&o.CreatedAt, &o.UpdatedAt, &o.AssignedAt, &o.ExpiresAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Status, err = model.ParseStatus(status)
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// conditional runs an UPDATE and maps zero affected rows to conflict or
// not-found depending on whether the order exists.
func (s *orderStore) conditional(ctx context.Context, id, query string, args ...any) error {
	res, err := s.d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.d.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return errs.ErrNotFound
	}
	return errs.ErrConflict
}

func (s *orderStore) Get(ctx context.Context, id string) (model.Order, error) {
	row := s.d.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return model.Order{}, errs.ErrNotFound
	}
	return o, err
}

func (s *orderStore) Create(ctx context.Context, o model.Order) error {
	if o.CreatedAt == 0 {
		o.CreatedAt = s.d.now().UnixMilli()
	}
	_, err := s.d.db.ExecContext(ctx, `INSERT INTO orders (`+orderCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Status.String(), o.DriverID, o.DriverIdentity, o.JobID, o.BatchID, o.ProviderID,
		o.Pickup.Lat, o.Pickup.Lon, o.Dropoff.Lat, o.Dropoff.Lon,
		o.CreatedAt, o.CreatedAt, o.AssignedAt, o.ExpiresAt)
	if err != nil {
		// Primary key violation means the id is taken.
		return errs.ErrConflict
	}
	return nil
}

func (s *orderStore) MarkBatched(ctx context.Context, id, batchID string) error {
	return s.conditional(ctx, id, `UPDATE orders SET batch_id = ?, updated_at = ?
		WHERE id = ? AND status = 'UNASSIGNED' AND batch_id = ''`,
		batchID, s.d.now().UnixMilli(), id)
}

func (s *orderStore) ClearBatch(ctx context.Context, id string) error {
	_, err := s.d.db.ExecContext(ctx, `UPDATE orders SET batch_id = '', updated_at = ?
		WHERE id = ? AND batch_id != ''`, s.d.now().UnixMilli(), id)
	return err
}

func (s *orderStore) Assign(ctx context.Context, id string, a store.Assignment) error {
	return s.conditional(ctx, id, `UPDATE orders
		SET status = 'ASSIGNED', driver_id = ?, driver_identity = ?, job_id = ?, assigned_at = ?, updated_at = ?
		WHERE id = ? AND status = 'UNASSIGNED'`,
		a.DriverID, a.DriverIdentity, a.JobID, a.AssignedAt, s.d.now().UnixMilli(), id)
}

func (s *orderStore) Accept(ctx context.Context, id, driverID, jobID string) error {
	return s.conditional(ctx, id, `UPDATE orders SET status = 'ACCEPTED', updated_at = ?
		WHERE id = ? AND status = 'ASSIGNED' AND driver_id = ? AND job_id = ?`,
		s.d.now().UnixMilli(), id, driverID, jobID)
}

func (s *orderStore) Release(ctx context.Context, id, jobID string) error {
	return s.conditional(ctx, id, `UPDATE orders
		SET status = 'UNASSIGNED', driver_id = '', driver_identity = '', job_id = '', batch_id = '', assigned_at = 0, updated_at = ?
		WHERE id = ? AND status = 'ASSIGNED' AND job_id = ?`,
		s.d.now().UnixMilli(), id, jobID)
}

func (s *orderStore) Cancel(ctx context.Context, id string) error {
	return s.conditional(ctx, id, `UPDATE orders SET status = 'CANCELLED', batch_id = '', updated_at = ?
		WHERE id = ? AND status = 'UNASSIGNED'`,
		s.d.now().UnixMilli(), id)
}

func (s *orderStore) Finish(ctx context.Context, id, driverID, jobID string, st model.Status) error {
	clearDriver := ""
	if st.Terminal() {
		clearDriver = `, driver_id = '', driver_identity = ''`
	}
	return s.conditional(ctx, id, `UPDATE orders SET status = ?`+clearDriver+`, updated_at = ?
		WHERE id = ? AND status IN ('ASSIGNED', 'ACCEPTED') AND driver_id = ? AND job_id = ?`,
		st.String(), s.d.now().UnixMilli(), id, driverID, jobID)
}

func (s *orderStore) list(ctx context.Context, query string, arg any) ([]model.Order, error) {
	rows, err := s.d.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *orderStore) ListByStatus(ctx context.Context, st model.Status) ([]model.Order, error) {
	return s.list(ctx, `SELECT `+orderCols+` FROM orders WHERE status = ?`, st.String())
}

func (s *orderStore) ListByJob(ctx context.Context, jobID string) ([]model.Order, error) {
	return s.list(ctx, `SELECT `+orderCols+` FROM orders WHERE job_id = ?`, jobID)
}

type lockStore struct{ d *DB }

var _ store.LockStore = (*lockStore)(nil)

func (s *lockStore) Get(ctx context.Context, driverID string) (model.DriverLock, error) {
	var l model.DriverLock
	var locked int
	var ordersJSON string
	err := s.d.db.QueryRowContext(ctx, `SELECT driver_id, locked, orders FROM driver_locks WHERE driver_id = ?`,
		driverID).Scan(&l.DriverID, &locked, &ordersJSON)
	if err == sql.ErrNoRows {
		return model.DriverLock{}, errs.ErrNotFound
	}
	if err != nil {
		return model.DriverLock{}, err
	}
	l.Locked = locked != 0
	if err := json.Unmarshal([]byte(ordersJSON), &l.Orders); err != nil {
		return model.DriverLock{}, fmt.Errorf("decode lock orders: %w", err)
	}
	return l, nil
}

func (s *lockStore) Acquire(ctx context.Context, driverID string, orderIDs []string) error {
	if orderIDs == nil {
		orderIDs = []string{}
	}
	encoded, err := json.Marshal(orderIDs)
	if err != nil {
		return err
	}
	locked := 0
	if len(orderIDs) > 0 {
		locked = 1
	}
	res, err := s.d.db.ExecContext(ctx, `INSERT INTO driver_locks (driver_id, locked, orders)
		VALUES (?, ?, ?)
		ON CONFLICT(driver_id) DO UPDATE SET locked = excluded.locked, orders = excluded.orders
		WHERE driver_locks.locked = 0`,
		driverID, locked, string(encoded))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (s *lockStore) Release(ctx context.Context, driverID string) error {
	_, err := s.d.db.ExecContext(ctx, `UPDATE driver_locks SET locked = 0, orders = '[]'
		WHERE driver_id = ? AND locked = 1`, driverID)
	return err
}

func (s *lockStore) RemoveOrders(ctx context.Context, driverID string, orderIDs []string) error {
	drop := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		drop[id] = true
	}
	for {
		var locked int
		var prior string
		err := s.d.db.QueryRowContext(ctx, `SELECT locked, orders FROM driver_locks
			WHERE driver_id = ?`, driverID).Scan(&locked, &prior)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if locked == 0 {
			return nil
		}
		var held []string
		if err := json.Unmarshal([]byte(prior), &held); err != nil {
			return fmt.Errorf("decode lock orders: %w", err)
		}
		kept := make([]string, 0, len(held))
		for _, id := range held {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		encoded, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		still := 0
		if len(kept) > 0 {
			still = 1
		}
		// The WHERE clause re-checks the orders set read above; a
		// concurrent removal or re-acquire changes it and forces a
		// re-read instead of overwriting the other writer's result.
		res, err := s.d.db.ExecContext(ctx, `UPDATE driver_locks SET locked = ?, orders = ?
			WHERE driver_id = ? AND locked = 1 AND orders = ?`,
			still, string(encoded), driverID, prior)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
	}
}
