package repository

import (
	"context"

	"github.com/crowd-labeling-api/internal/models"
)

// answerRepo is the concrete implementation of AnswerRepository
type answerRepo struct {
	db querier
}

// NewAnswerRepo creates a new answer repository
func NewAnswerRepo(db querier) AnswerRepository {
	return &answerRepo{db: db}
}

const answerColumns = `id, location_id, user_id, year_old, year_new, source_url_root,
	land_usage, expansion, gold_standard_status,
	bbox_left_top_lat, bbox_left_top_lng, bbox_bottom_right_lat, bbox_bottom_right_lng,
	zoom_level, created_at`

// Create inserts a new answer and fills in its generated ID
func (r *answerRepo) Create(ctx context.Context, a *models.Answer) error {
	query := `
		INSERT INTO answers (location_id, user_id, year_old, year_new, source_url_root,
			land_usage, expansion, gold_standard_status,
			bbox_left_top_lat, bbox_left_top_lng, bbox_bottom_right_lat, bbox_bottom_right_lng,
			zoom_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.LocationID, a.UserID, a.YearOld, a.YearNew, a.SourceURLRoot,
		a.LandUsage, a.Expansion, a.GoldStandardStatus,
		a.BBoxLeftTopLat, a.BBoxLeftTopLng, a.BBoxBottomRightLat, a.BBoxBottomRightLng,
		a.ZoomLevel,
	).Scan(&a.ID, &a.CreatedAt)
	return mapError(err)
}

// GetByID retrieves an answer by ID
func (r *answerRepo) GetByID(ctx context.Context, id int64) (*models.Answer, error) {
	return r.queryOne(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, id)
}

// ListByUser returns every answer a user submitted
func (r *answerRepo) ListByUser(ctx context.Context, userID int64) ([]*models.Answer, error) {
	return r.queryMany(ctx, `SELECT `+answerColumns+` FROM answers WHERE user_id = $1 ORDER BY id`, userID)
}

// ListByLocation returns every answer recorded for a location
func (r *answerRepo) ListByLocation(ctx context.Context, locationID int64) ([]*models.Answer, error) {
	return r.queryMany(ctx, `SELECT `+answerColumns+` FROM answers WHERE location_id = $1 ORDER BY id`, locationID)
}

// ListByUserAndLocation returns a user's answers for one location
func (r *answerRepo) ListByUserAndLocation(ctx context.Context, userID, locationID int64) ([]*models.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers WHERE user_id = $1 AND location_id = $2 ORDER BY id`
	return r.queryMany(ctx, query, userID, locationID)
}

// GoldByLocation returns the gold standard answer of a location
func (r *answerRepo) GoldByLocation(ctx context.Context, locationID int64) (*models.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers WHERE location_id = $1 AND gold_standard_status = $2`
	return r.queryOne(ctx, query, locationID, models.GoldStandard)
}

// GoldLocationIDs returns the distinct locations that carry a gold standard
func (r *answerRepo) GoldLocationIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT location_id FROM answers WHERE gold_standard_status = $1 ORDER BY location_id`
	return queryIDs(ctx, r.db, query, models.GoldStandard)
}

// LocationIDsByUser returns the distinct locations a user has answered
func (r *answerRepo) LocationIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT DISTINCT location_id FROM answers WHERE user_id = $1 ORDER BY location_id`
	return queryIDs(ctx, r.db, query, userID)
}

// ExistsMatching reports whether a location has an answer with the given
// status and judgment. ExcludeUserID, when non-zero, ignores that user's answers.
func (r *answerRepo) ExistsMatching(ctx context.Context, m models.AnswerMatch) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM answers
			WHERE location_id = $1
			  AND gold_standard_status = $2
			  AND land_usage = $3
			  AND expansion = $4
			  AND ($5::bigint = 0 OR user_id <> $5::bigint)
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		m.LocationID, m.Status, m.LandUsage, m.Expansion, m.ExcludeUserID,
	).Scan(&exists)
	return exists, err
}

// UpdateGoldStandardStatus retags an answer
func (r *answerRepo) UpdateGoldStandardStatus(ctx context.Context, id int64, status models.GoldStandardStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE answers SET gold_standard_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes an answer
func (r *answerRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM answers WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountNonGold returns the number of user-submitted answers
func (r *answerRepo) CountNonGold(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM answers WHERE gold_standard_status <> $1", models.GoldStandard,
	).Scan(&count)
	return count, err
}

// CountPassedLocationsByUser counts distinct locations a user answered in passing batches
func (r *answerRepo) CountPassedLocationsByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT location_id) FROM answers WHERE user_id = $1 AND gold_standard_status = $2",
		userID, models.GoldPassed,
	).Scan(&count)
	return count, err
}

// StreamAll streams every answer joined with its user and location for export
func (r *answerRepo) StreamAll(ctx context.Context, callback func(*models.AnswerExport) error) error {
	query := `
		SELECT a.id, a.location_id, a.user_id, a.year_old, a.year_new, a.source_url_root,
			a.land_usage, a.expansion, a.gold_standard_status,
			a.bbox_left_top_lat, a.bbox_left_top_lng, a.bbox_bottom_right_lat, a.bbox_bottom_right_lng,
			a.zoom_level, a.created_at, u.client_id, l.factory_id
		FROM answers a
		JOIN users u ON u.id = a.user_id
		JOIN locations l ON l.id = a.location_id
		ORDER BY a.user_id, a.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.AnswerExport
		dest := append(answerDest(&e.Answer), &e.ClientID, &e.FactoryID)
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		if err := callback(&e); err != nil {
			return err
		}
	}

	return rows.Err()
}

func answerDest(a *models.Answer) []interface{} {
	return []interface{}{
		&a.ID, &a.LocationID, &a.UserID, &a.YearOld, &a.YearNew, &a.SourceURLRoot,
		&a.LandUsage, &a.Expansion, &a.GoldStandardStatus,
		&a.BBoxLeftTopLat, &a.BBoxLeftTopLng, &a.BBoxBottomRightLat, &a.BBoxBottomRightLng,
		&a.ZoomLevel, &a.CreatedAt,
	}
}

func (r *answerRepo) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Answer, error) {
	answers, err := r.queryMany(ctx, query, args...)
	if err != nil || len(answers) == 0 {
		return nil, err
	}
	return answers[0], nil
}

func (r *answerRepo) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.Answer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []*models.Answer{}
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(answerDest(&a)...); err != nil {
			return nil, err
		}
		answers = append(answers, &a)
	}
	return answers, rows.Err()
}
