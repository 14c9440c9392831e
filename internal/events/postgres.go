package events

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
)

// PostgresStore persists transition events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ev domain.TransitionEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transition_events (id, user_id, geofence_id, event_type, occurred_at, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.UserID, ev.GeofenceID, string(ev.Type), ev.Timestamp, ev.Latitude, ev.Longitude,
	)
	if err != nil {
		return fmt.Errorf("append transition event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TransitionEvent, error) {
	return s.list(ctx,
		`SELECT id, user_id, geofence_id, event_type, occurred_at, latitude, longitude
		 FROM transition_events WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT $2`,
		userID, limit)
}

func (s *PostgresStore) ListByGeofence(ctx context.Context, geofenceID int64, limit int) ([]domain.TransitionEvent, error) {
	return s.list(ctx,
		`SELECT id, user_id, geofence_id, event_type, occurred_at, latitude, longitude
		 FROM transition_events WHERE geofence_id = $1 ORDER BY occurred_at DESC LIMIT $2`,
		geofenceID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]domain.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transition events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TransitionEvent
	for rows.Next() {
		var ev domain.TransitionEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.GeofenceID, &kind, &ev.Timestamp, &ev.Latitude, &ev.Longitude); err != nil {
			return nil, fmt.Errorf("scan transition event: %w", err)
		}
		ev.Type = domain.TransitionType(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PostgresLocationStore persists the raw location trail.
type PostgresLocationStore struct {
	db *sql.DB
}

var _ LocationStore = (*PostgresLocationStore)(nil)

func NewPostgresLocationStore(db *sql.DB) *PostgresLocationStore {
	return &PostgresLocationStore{db: db}
}

func (s *PostgresLocationStore) Record(ctx context.Context, up domain.LocationUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO location_events (user_id, latitude, longitude, occurred_at) VALUES ($1, $2, $3, $4)`,
		up.UserID, up.Latitude, up.Longitude, up.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record location: %w", err)
	}
	return nil
}

func (s *PostgresLocationStore) Latest(ctx context.Context, userID int64) (domain.LocationUpdate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, latitude, longitude, occurred_at FROM location_events
		 WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT 1`,
		userID,
	)
	var up domain.LocationUpdate
	if err := row.Scan(&up.UserID, &up.Latitude, &up.Longitude, &up.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return domain.LocationUpdate{}, derrors.ErrNotFound
		}
		return domain.LocationUpdate{}, fmt.Errorf("latest location: %w", err)
	}
	return up, nil
}

func (s *PostgresLocationStore) History(ctx context.Context, userID int64, limit int) ([]domain.LocationUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, latitude, longitude, occurred_at FROM location_events
		 WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("location history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LocationUpdate
	for rows.Next() {
		var up domain.LocationUpdate
		if err := rows.Scan(&up.UserID, &up.Latitude, &up.Longitude, &up.Timestamp); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, up)
	}
	return out, rows.Err()
}
