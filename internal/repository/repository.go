package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/crowd-labeling-api/internal/database"
	"github.com/crowd-labeling-api/internal/models"
)

// ErrConflict is returned when a write violates a uniqueness constraint
var ErrConflict = errors.New("unique constraint violation")

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByClientID(ctx context.Context, clientID string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateClientType(ctx context.Context, id int64, clientType models.ClientType) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// LocationRepository defines the interface for location data operations
type LocationRepository interface {
	Create(ctx context.Context, location *models.Location) error
	BatchInsert(ctx context.Context, locations []*models.Location) (int, error)
	GetByID(ctx context.Context, id int64) (*models.Location, error)
	GetByFactoryID(ctx context.Context, factoryID string) (*models.Location, error)
	GetAllFactoryIDs(ctx context.Context) ([]string, error)
	// SetDoneAt stamps done_at, keeping an earlier stamp if one exists.
	// A nil doneAt clears it. Returns nil when the location does not exist.
	SetDoneAt(ctx context.Context, id int64, doneAt *time.Time) (*models.Location, error)
	DoneIDs(ctx context.Context) ([]int64, error)
	// RandomSample returns up to limit locations matching the filter in random order
	RandomSample(ctx context.Context, filter models.LocationFilter, limit int) ([]*models.Location, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
	CountDone(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.LocationSummary) error) error
}

// AnswerRepository defines the interface for answer data operations
type AnswerRepository interface {
	Create(ctx context.Context, answer *models.Answer) error
	GetByID(ctx context.Context, id int64) (*models.Answer, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Answer, error)
	ListByLocation(ctx context.Context, locationID int64) ([]*models.Answer, error)
	ListByUserAndLocation(ctx context.Context, userID, locationID int64) ([]*models.Answer, error)
	// GoldByLocation returns the gold standard answer of a location, or nil
	GoldByLocation(ctx context.Context, locationID int64) (*models.Answer, error)
	GoldLocationIDs(ctx context.Context) ([]int64, error)
	LocationIDsByUser(ctx context.Context, userID int64) ([]int64, error)
	ExistsMatching(ctx context.Context, match models.AnswerMatch) (bool, error)
	UpdateGoldStandardStatus(ctx context.Context, id int64, status models.GoldStandardStatus) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	CountNonGold(ctx context.Context) (int, error)
	CountPassedLocationsByUser(ctx context.Context, userID int64) (int, error)
	StreamAll(ctx context.Context, callback func(*models.AnswerExport) error) error
}

// TxFunc is run inside a transaction with repositories bound to it
type TxFunc func(repos *Repositories) error

// Transactor runs a function atomically: all writes made through the
// repositories it receives commit together or not at all
type Transactor interface {
	WithTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error
}

// Repositories holds all repository interfaces
type Repositories struct {
	User     UserRepository
	Location LocationRepository
	Answer   AnswerRepository
	Tx       Transactor
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	repos := newRepositories(db)
	repos.Tx = &pgTransactor{db: db}
	return repos
}

func newRepositories(q querier) *Repositories {
	return &Repositories{
		User:     NewUserRepo(q),
		Location: NewLocationRepo(q),
		Answer:   NewAnswerRepo(q),
	}
}

// Nested returns a Transactor for code already running inside a transaction:
// it calls fn directly with the same repositories.
func Nested(repos *Repositories) Transactor {
	return nestedTx{repos: repos}
}

type nestedTx struct {
	repos *Repositories
}

func (n nestedTx) WithTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	return fn(n.repos)
}
