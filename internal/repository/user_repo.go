package repository

import (
	"context"
	"database/sql"

	"github.com/crowd-labeling-api/internal/models"
)

// userRepo is the concrete implementation of UserRepository
type userRepo struct {
	db querier
}

// NewUserRepo creates a new user repository
func NewUserRepo(db querier) UserRepository {
	return &userRepo{db: db}
}

// Create inserts a new user and fills in its generated ID
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (client_id, client_type)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.ClientID, user.ClientType).
		Scan(&user.ID, &user.CreatedAt)
	return mapError(err)
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, client_id, client_type, created_at FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByClientID retrieves a user by the identifier its front-end issued
func (r *userRepo) GetByClientID(ctx context.Context, clientID string) (*models.User, error) {
	query := `SELECT id, client_id, client_type, created_at FROM users WHERE client_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, clientID))
}

func (r *userRepo) scanOne(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.ClientID, &user.ClientType, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns all users ordered by ID
func (r *userRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, client_id, client_type, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.ClientID, &user.ClientType, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// UpdateClientType changes a user's permission level
func (r *userRepo) UpdateClientType(ctx context.Context, id int64, clientType models.ClientType) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET client_type = $1 WHERE id = $2`, clientType, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a user and, through the foreign key, its answers
func (r *userRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Count returns the total number of users
func (r *userRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
