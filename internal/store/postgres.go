package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

// PostgresStore is the durable ride.Store backed by PostgreSQL. Every
// mutation after Create is a conditional UPDATE guarded by the version
// column; direct unconditional writes are not offered.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ride store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const rideColumns = `
	id, rider_id, driver_id, pickup_location, dropoff_location, status,
	match_attempts, version, requested_at, status_changed_at,
	accepted_at, started_at, completed_at, cancelled_at
`

// Create persists a new ride at version 0
func (s *PostgresStore) Create(ctx context.Context, r *ride.Ride) error {
	r.Version = 0
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, rider_id, pickup_location, dropoff_location, status,
			match_attempts, version, requested_at, status_changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`, r.ID, r.RiderID, r.PickupLocation, r.DropoffLocation, r.Status,
		r.MatchAttempts, r.RequestedAt, r.StatusChangedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// Get returns the current snapshot with its version
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE id = $1
	`, id)
	return scanRide(row)
}

// CompareAndSwap commits updated iff the stored version matches expectedVersion.
// RowsAffected discriminates between a lost race and a missing ride.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, updated *ride.Ride) (*ride.Ride, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rides
		SET driver_id = $1,
		    status = $2,
		    match_attempts = $3,
		    status_changed_at = $4,
		    accepted_at = $5,
		    started_at = $6,
		    completed_at = $7,
		    cancelled_at = $8,
		    version = version + 1
		WHERE id = $9 AND version = $10
	`, nullUUID(updated.DriverID), updated.Status, updated.MatchAttempts,
		updated.StatusChangedAt, nullTime(updated.AcceptedAt), nullTime(updated.StartedAt),
		nullTime(updated.CompletedAt), nullTime(updated.CancelledAt),
		id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("compare-and-swap ride: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("compare-and-swap ride: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("compare-and-swap ride: %w", err)
		}
		if !exists {
			return nil, ride.ErrRideNotFound
		}
		return nil, ride.ErrStaleVersion
	}

	next := updated.Clone()
	next.ID = id
	next.Version = expectedVersion + 1
	return next, nil
}

// ListByStatus returns all rides in the given status
func (s *PostgresStore) ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = $1
		ORDER BY requested_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list rides by status: %w", err)
	}
	defer rows.Close()

	var out []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var (
		r           ride.Ride
		driverID    sql.NullString
		acceptedAt  sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.PickupLocation, &r.DropoffLocation,
		&r.Status, &r.MatchAttempts, &r.Version, &r.RequestedAt, &r.StatusChangedAt,
		&acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ride.ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}

	if driverID.Valid {
		id, err := uuid.Parse(driverID.String)
		if err != nil {
			return nil, fmt.Errorf("scan ride: invalid driver id: %w", err)
		}
		r.DriverID = &id
	}
	r.AcceptedAt = timePtr(acceptedAt)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	return &r, nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
