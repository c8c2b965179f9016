package service

import (
	"context"
	"fmt"
	"time"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	userCountKey         = "user_count"
	locationDoneCountKey = "location_done_count"
	answerCountKey       = "answer_count"
)

// statusService is the concrete implementation of StatusService
type statusService struct {
	repos *repository.Repositories
	cache *cache.Cache
	log   zerolog.Logger
}

// newStatusService creates a new StatusService. Global counters are cached
// for ttl; a non-positive ttl disables caching.
func newStatusService(repos *repository.Repositories, ttl time.Duration, log zerolog.Logger) *statusService {
	var c *cache.Cache
	if ttl > 0 {
		// Three fixed keys, so expired entries need no janitor goroutine
		c = cache.New(ttl, 0)
	}
	return &statusService{
		repos: repos,
		cache: c,
		log:   log.With().Str("service", "status").Logger(),
	}
}

// Get returns the user's progress alongside the global counters
func (s *statusService) Get(ctx context.Context, userID int64) (*models.Status, error) {
	var status models.Status
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.repos.Answer.CountPassedLocationsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("count user answers: %w", err)
		}
		status.IndividualDoneCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.cachedCount(ctx, userCountKey, s.repos.User.Count)
		status.UserCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.cachedCount(ctx, locationDoneCountKey, s.repos.Location.CountDone)
		status.LocationDoneCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.cachedCount(ctx, answerCountKey, s.repos.Answer.CountNonGold)
		status.AnswerCount = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *statusService) cachedCount(ctx context.Context, key string, count func(context.Context) (int, error)) (int, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(int), nil
		}
	}

	n, err := count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if s.cache != nil {
		s.cache.SetDefault(key, n)
	}
	s.log.Debug().Str("counter", key).Int("value", n).Msg("Status counter refreshed")
	return n, nil
}
