package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/lib/pq"
)

// locationRepo is the concrete implementation of LocationRepository
type locationRepo struct {
	db querier
}

// NewLocationRepo creates a new location repository
func NewLocationRepo(db querier) LocationRepository {
	return &locationRepo{db: db}
}

const locationColumns = `id, factory_id, done_at, created_at`

// Create inserts a new location and fills in its generated ID
func (r *locationRepo) Create(ctx context.Context, location *models.Location) error {
	query := `
		INSERT INTO locations (factory_id, done_at)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, location.FactoryID, location.DoneAt).
		Scan(&location.ID, &location.CreatedAt)
	return mapError(err)
}

// BatchInsert inserts multiple locations using PostgreSQL COPY.
// Factory IDs must already be deduplicated against the table.
func (r *locationRepo) BatchInsert(ctx context.Context, locations []*models.Location) (int, error) {
	if len(locations) == 0 {
		return 0, nil
	}

	inserted := 0
	err := withCopyTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("locations", "factory_id", "done_at", "created_at"))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for _, loc := range locations {
			if _, err := stmt.ExecContext(ctx, loc.FactoryID, loc.DoneAt, now); err != nil {
				return err
			}
			inserted++
		}

		// Execute the COPY
		_, err = stmt.ExecContext(ctx)
		return err
	})
	if err != nil {
		return 0, mapError(err)
	}
	return inserted, nil
}

// GetByID retrieves a location by ID
func (r *locationRepo) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	return scanLocation(r.db.QueryRowContext(ctx, query, id))
}

// GetByFactoryID retrieves a location by its factory identifier
func (r *locationRepo) GetByFactoryID(ctx context.Context, factoryID string) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE factory_id = $1`
	return scanLocation(r.db.QueryRowContext(ctx, query, factoryID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (*models.Location, error) {
	var loc models.Location
	var doneAt sql.NullTime

	err := row.Scan(&loc.ID, &loc.FactoryID, &doneAt, &loc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if doneAt.Valid {
		loc.DoneAt = &doneAt.Time
	}
	return &loc, nil
}

// GetAllFactoryIDs retrieves every factory ID (for duplicate detection on import)
func (r *locationRepo) GetAllFactoryIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT factory_id FROM locations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetDoneAt stamps or clears done_at and returns the updated row
func (r *locationRepo) SetDoneAt(ctx context.Context, id int64, doneAt *time.Time) (*models.Location, error) {
	if doneAt == nil {
		query := `UPDATE locations SET done_at = NULL WHERE id = $1 RETURNING ` + locationColumns
		return scanLocation(r.db.QueryRowContext(ctx, query, id))
	}

	query := `UPDATE locations SET done_at = COALESCE(done_at, $1) WHERE id = $2 RETURNING ` + locationColumns
	return scanLocation(r.db.QueryRowContext(ctx, query, *doneAt, id))
}

// DoneIDs returns the IDs of every resolved location
func (r *locationRepo) DoneIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, r.db, "SELECT id FROM locations WHERE done_at IS NOT NULL")
}

// RandomSample draws up to limit locations matching the filter.
// pq.Array of a nil slice binds NULL, which disables that condition.
func (r *locationRepo) RandomSample(ctx context.Context, filter models.LocationFilter, limit int) ([]*models.Location, error) {
	if limit <= 0 {
		return []*models.Location{}, nil
	}

	query := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE ($1::bigint[] IS NULL OR id = ANY($1::bigint[]))
		  AND ($2::bigint[] IS NULL OR NOT (id = ANY($2::bigint[])))
		  AND (NOT $3::boolean OR done_at IS NULL)
		ORDER BY random()
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(filter.IDs), pq.Array(filter.ExcludeIDs), filter.OnlyOpen, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []*models.Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// Delete removes a location and, through the foreign key, its answers
func (r *locationRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Count returns the total number of locations
func (r *locationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations").Scan(&count)
	return count, err
}

// CountDone returns the number of resolved locations
func (r *locationRepo) CountDone(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations WHERE done_at IS NOT NULL").Scan(&count)
	return count, err
}

// StreamAll streams all locations with their answer counts for export
func (r *locationRepo) StreamAll(ctx context.Context, callback func(*models.LocationSummary) error) error {
	query := `
		SELECT l.id, l.factory_id, l.done_at, l.created_at, COUNT(a.id)
		FROM locations l
		LEFT JOIN answers a ON a.location_id = l.id
		GROUP BY l.id
		ORDER BY l.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var summary models.LocationSummary
		var doneAt sql.NullTime

		err := rows.Scan(
			&summary.ID, &summary.FactoryID, &doneAt, &summary.CreatedAt, &summary.AnswerCount,
		)
		if err != nil {
			return err
		}
		if doneAt.Valid {
			summary.DoneAt = &doneAt.Time
		}

		if err := callback(&summary); err != nil {
			return err
		}
	}

	return rows.Err()
}

func queryIDs(ctx context.Context, db querier, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
