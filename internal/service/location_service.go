package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/crowd-labeling-api/internal/metrics"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/rs/zerolog"
)

// snapshotTx makes every read of one sampling call see the same data
var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// locationService is the concrete implementation of LocationService
type locationService struct {
	repos *repository.Repositories
	now   func() time.Time
	log   zerolog.Logger
}

// newLocationService creates a new LocationService
func newLocationService(repos *repository.Repositories, now func() time.Time, log zerolog.Logger) *locationService {
	return &locationService{
		repos: repos,
		now:   now,
		log:   log.With().Str("service", "location").Logger(),
	}
}

// Sample draws a batch of locations for the user
func (s *locationService) Sample(ctx context.Context, userID int64, totalSize, goldSize int) ([]*models.Location, error) {
	if err := validation.ValidateSampleRequest(totalSize, goldSize); err != nil {
		metrics.RecordSample("invalid")
		return nil, err
	}
	if totalSize == 0 {
		return []*models.Location{}, nil
	}

	var batch []*models.Location
	err := s.repos.Tx.WithTx(ctx, snapshotTx, func(r *repository.Repositories) error {
		var err error
		batch, err = drawBatch(ctx, r, userID, totalSize, goldSize)
		return err
	})
	if err != nil {
		metrics.RecordSample(sampleResult(err))
		return nil, err
	}

	rand.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})

	metrics.RecordSample("ok")
	s.log.Debug().
		Int64("user_id", userID).
		Int("size", totalSize).
		Int("gold_size", goldSize).
		Msg("Location batch sampled")

	return batch, nil
}

// drawBatch picks the gold and non-gold slices of a batch, gold first
func drawBatch(ctx context.Context, r *repository.Repositories, userID int64, totalSize, goldSize int) ([]*models.Location, error) {
	goldIDs, err := r.Answer.GoldLocationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gold standard locations: %w", err)
	}
	if len(goldIDs) == 0 {
		return nil, ErrNoGoldStandards
	}
	if len(goldIDs) < goldSize {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientGoldStandards, len(goldIDs), goldSize)
	}

	answered, err := r.Answer.LocationIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list answered locations: %w", err)
	}
	doneIDs, err := r.Location.DoneIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list done locations: %w", err)
	}
	excluded := union(answered, doneIDs)

	// Gold slice: prefer gold locations the user has not seen yet, then fall
	// back to ones they answered before. Done locations are never handed out.
	gold, err := r.Location.RandomSample(ctx, models.LocationFilter{IDs: goldIDs, ExcludeIDs: excluded, OnlyOpen: true}, goldSize)
	if err != nil {
		return nil, fmt.Errorf("sample gold locations: %w", err)
	}
	if short := goldSize - len(gold); short > 0 {
		more, err := r.Location.RandomSample(ctx, models.LocationFilter{
			IDs:        goldIDs,
			ExcludeIDs: union(doneIDs, locationIDs(gold)),
			OnlyOpen:   true,
		}, short)
		if err != nil {
			return nil, fmt.Errorf("sample gold locations: %w", err)
		}
		gold = append(gold, more...)
	}
	if len(gold) < goldSize {
		return nil, fmt.Errorf("%w: %d open, want %d", ErrInsufficientGoldStandards, len(gold), goldSize)
	}

	want := totalSize - goldSize
	rest, err := r.Location.RandomSample(ctx, models.LocationFilter{
		ExcludeIDs: union(goldIDs, excluded),
		OnlyOpen:   true,
	}, want)
	if err != nil {
		return nil, fmt.Errorf("sample locations: %w", err)
	}
	if len(rest) < want {
		return nil, fmt.Errorf("%w: %d available, want %d", ErrInsufficientLocations, len(rest), want)
	}

	return append(gold, rest...), nil
}

// SetDone marks a location resolved or reopens it
func (s *locationService) SetDone(ctx context.Context, locationID int64, isDone bool) (*models.Location, error) {
	loc, err := setDone(ctx, s.repos.Location, locationID, isDone, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("location_id", locationID).
		Bool("is_done", isDone).
		Msg("Location done state changed")

	return loc, nil
}

// setDone is the single writer of locations.done_at
func setDone(ctx context.Context, locations repository.LocationRepository, locationID int64, isDone bool, now time.Time) (*models.Location, error) {
	var doneAt *time.Time
	if isDone {
		doneAt = &now
	}

	loc, err := locations.SetDoneAt(ctx, locationID, doneAt)
	if err != nil {
		return nil, fmt.Errorf("set done on location %d: %w", locationID, err)
	}
	if loc == nil {
		return nil, fmt.Errorf("location %d: %w", locationID, ErrNotFound)
	}
	return loc, nil
}

// Create adds a single location
func (s *locationService) Create(ctx context.Context, factoryID string) (*models.Location, error) {
	row := &models.LocationCSV{FactoryID: factoryID}
	if errs := validation.NewValidator().ValidateLocation(row); len(errs) > 0 {
		return nil, validation.Errors(errs)
	}

	loc := &models.Location{FactoryID: strings.TrimSpace(factoryID)}
	if err := s.repos.Location.Create(ctx, loc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, validation.Errors{{Field: "factory_id", Message: "duplicate factory_id", Value: loc.FactoryID}}
		}
		return nil, fmt.Errorf("create location: %w", err)
	}

	s.log.Info().Int64("location_id", loc.ID).Str("factory_id", loc.FactoryID).Msg("Location created")
	return loc, nil
}

// Delete removes a location together with its answers
func (s *locationService) Delete(ctx context.Context, locationID int64) error {
	deleted, err := s.repos.Location.Delete(ctx, locationID)
	if err != nil {
		return fmt.Errorf("delete location %d: %w", locationID, err)
	}
	if !deleted {
		return fmt.Errorf("location %d: %w", locationID, ErrNotFound)
	}

	s.log.Info().Int64("location_id", locationID).Msg("Location deleted")
	return nil
}

func sampleResult(err error) string {
	switch {
	case errors.Is(err, ErrNoGoldStandards), errors.Is(err, ErrInsufficientGoldStandards):
		return "insufficient_gold"
	case errors.Is(err, ErrInsufficientLocations):
		return "insufficient_locations"
	}
	return "error"
}

func union(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, ids := range [][]int64{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func locationIDs(locs []*models.Location) []int64 {
	ids := make([]int64, len(locs))
	for i, l := range locs {
		ids[i] = l.ID
	}
	return ids
}
