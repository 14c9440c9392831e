package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/geo"
)

// PostgresStore reads the geofence catalog from PostgreSQL. The catalog
// service owns writes; the detector only ever snapshots.
type PostgresStore struct {
	db *sql.DB
}

var _ Provider = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]domain.Geofence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, latitude, longitude, radius_m FROM geofences WHERE active`,
	)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w: %w", derrors.ErrCatalogUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Geofence
	for rows.Next() {
		var f domain.Geofence
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Latitude, &f.Longitude, &f.RadiusM); err != nil {
			return nil, fmt.Errorf("scan geofence: %w: %w", derrors.ErrCatalogUnavailable, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list geofences: %w: %w", derrors.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) ListNear(ctx context.Context, p geo.Point, maxRadiusM float64) ([]domain.Geofence, error) {
	all, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return filterNear(all, p, maxRadiusM), nil
}
