package service

import (
	"context"
	"io"
	"time"

	"github.com/crowd-labeling-api/internal/auth"
	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/rs/zerolog"
)

// LocationService samples locations for labeling and manages their lifecycle
type LocationService interface {
	// Sample returns exactly totalSize open locations the user has not
	// answered, goldSize of them carrying a gold standard, in random order
	Sample(ctx context.Context, userID int64, totalSize, goldSize int) ([]*models.Location, error)
	// SetDone marks a location resolved (keeping an earlier stamp) or reopens it
	SetDone(ctx context.Context, locationID int64, isDone bool) (*models.Location, error)
	Create(ctx context.Context, factoryID string) (*models.Location, error)
	Delete(ctx context.Context, locationID int64) error
}

// AnswerService reconciles submitted answer batches and manages gold standards
type AnswerService interface {
	// Submit runs the gold check over a batch, resolves agreeing locations
	// and stores every answer. It reports whether the batch passed.
	Submit(ctx context.Context, userID int64, inputs []*models.AnswerInput) (bool, error)
	Evaluate(ctx context.Context, locationID int64, landUsage models.LandUsage, expansion models.Expansion) (Verdict, error)
	CreateGoldStandard(ctx context.Context, adminID int64, input *models.AnswerInput) (*models.Answer, error)
	SetGoldStandardStatus(ctx context.Context, answerID int64, status models.GoldStandardStatus) (*models.Answer, error)
	Delete(ctx context.Context, answerID int64) error
}

// UserService handles login, token checks and user administration
type UserService interface {
	Login(ctx context.Context, clientID string) (string, *models.User, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	SetClientType(ctx context.Context, userID int64, clientType models.ClientType) (*models.User, error)
}

// StatusService reports labeling progress
type StatusService interface {
	Get(ctx context.Context, userID int64) (*models.Status, error)
}

// ImportService loads locations and gold standards from CSV
type ImportService interface {
	ImportLocations(ctx context.Context, r io.Reader) (*models.ImportResult, error)
	ImportGoldStandards(ctx context.Context, r io.Reader, adminClientID string) (*models.ImportResult, error)
}

// ExportService streams stored data in csv, ndjson or json
type ExportService interface {
	StreamAnswers(ctx context.Context, w io.Writer, format string) error
	StreamLocations(ctx context.Context, w io.Writer, format string) error
}

// Services holds all service interfaces
type Services struct {
	Location LocationService
	Answer   AnswerService
	User     UserService
	Status   StatusService
	Import   ImportService
	Export   ExportService
}

type options struct {
	now func() time.Time
}

// Option customises NewServices
type Option func(*options)

// WithClock replaces time.Now for location done stamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, cfg *config.Config, log zerolog.Logger, opts ...Option) *Services {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Services{
		Location: newLocationService(repos, o.now, log),
		Answer:   newAnswerService(repos, o.now, log),
		User:     newUserService(repos, auth.NewIssuer(cfg.Auth), log),
		Status:   newStatusService(repos, cfg.Sampling.StatusCacheTTL, log),
		Import:   newImportService(repos, cfg, log),
		Export:   newExportService(repos, log),
	}
}
