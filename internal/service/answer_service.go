package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crowd-labeling-api/internal/metrics"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/rs/zerolog"
)

// answerService is the concrete implementation of AnswerService
type answerService struct {
	repos *repository.Repositories
	now   func() time.Time
	log   zerolog.Logger
}

// newAnswerService creates a new AnswerService
func newAnswerService(repos *repository.Repositories, now func() time.Time, log zerolog.Logger) *answerService {
	return &answerService{
		repos: repos,
		now:   now,
		log:   log.With().Str("service", "answer").Logger(),
	}
}

// batchOutcome is what one reconciled batch did
type batchOutcome struct {
	status   models.GoldStandardStatus
	resolved []int64
	stored   int
}

// Submit reconciles an answer batch. Nothing is written unless the whole
// batch is valid, answers at least one gold standard location and every
// insert succeeds.
func (s *answerService) Submit(ctx context.Context, userID int64, inputs []*models.AnswerInput) (bool, error) {
	if err := validation.ValidateAnswerBatch(inputs); err != nil {
		metrics.RecordBatch("rejected", 0, "")
		return false, err
	}

	user, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil {
		return false, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if user.IsBanned() {
		return false, fmt.Errorf("user %d is banned: %w", userID, ErrForbidden)
	}

	var out batchOutcome
	err = s.repos.Tx.WithTx(ctx, nil, func(r *repository.Repositories) error {
		var err error
		out, err = reconcile(ctx, r, userID, inputs, s.now())
		return err
	})
	if err != nil {
		metrics.RecordBatch("rejected", 0, "")
		s.log.Warn().
			Err(err).
			Int64("user_id", userID).
			Int("size", len(inputs)).
			Msg("Answer batch rejected")
		return false, err
	}

	metrics.RecordBatch(out.status.String(), out.stored, out.status.String())
	metrics.RecordResolved(len(out.resolved))

	s.log.Info().
		Int64("user_id", userID).
		Int("size", len(inputs)).
		Str("status", out.status.String()).
		Ints64("resolved_locations", out.resolved).
		Msg("Answer batch reconciled")

	return out.status == models.GoldPassed, nil
}

// reconcile runs the two-pass gold check on repositories bound to one transaction
func reconcile(ctx context.Context, r *repository.Repositories, userID int64, inputs []*models.AnswerInput, now time.Time) (batchOutcome, error) {
	var out batchOutcome
	eval := newGoldEvaluator(r.Answer)

	// Every referenced location must exist before anything is written
	wasDone := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		id := *in.LocationID
		if _, ok := wasDone[id]; ok {
			continue
		}
		loc, err := r.Location.GetByID(ctx, id)
		if err != nil {
			return out, fmt.Errorf("load location %d: %w", id, err)
		}
		if loc == nil {
			return out, fmt.Errorf("location %d: %w", id, ErrNotFound)
		}
		wasDone[id] = loc.IsDone()
	}

	// Pass 1: classify. The first gold verdict in submission order decides the batch.
	var nonGold []int
	found := false
	for i, in := range inputs {
		verdict, err := eval.Evaluate(ctx, *in.LocationID, models.LandUsage(*in.LandUsage), models.Expansion(*in.Expansion))
		if err != nil {
			return out, err
		}
		if verdict == NoGoldStandard {
			nonGold = append(nonGold, i)
			continue
		}
		if !found {
			out.status, found = verdict.status()
		}
	}
	if !found {
		return out, ErrNoGoldCheck
	}

	// Consensus: an earlier passed answer from another user agreeing with this
	// one resolves the location. Runs before this batch's rows exist.
	if out.status == models.GoldPassed {
		checked := make(map[int64]bool, len(nonGold))
		for _, i := range nonGold {
			in := inputs[i]
			id := *in.LocationID
			if checked[id] {
				continue
			}

			agree, err := eval.HasMatchingPassedAnswer(ctx, id, models.LandUsage(*in.LandUsage), models.Expansion(*in.Expansion), userID)
			if err != nil {
				return out, err
			}
			if !agree {
				continue
			}

			checked[id] = true
			if _, err := setDone(ctx, r.Location, id, true, now); err != nil {
				return out, err
			}
			if !wasDone[id] {
				out.resolved = append(out.resolved, id)
			}
		}
	}

	// Pass 2: store every answer with the batch status
	for _, in := range inputs {
		answer := in.ToAnswer(userID, out.status)
		if err := r.Answer.Create(ctx, answer); err != nil {
			return out, fmt.Errorf("store answer for location %d: %w", answer.LocationID, err)
		}
		out.stored++
	}

	return out, nil
}

// Evaluate checks a single judgment against the location's gold standard
func (s *answerService) Evaluate(ctx context.Context, locationID int64, landUsage models.LandUsage, expansion models.Expansion) (Verdict, error) {
	return newGoldEvaluator(s.repos.Answer).Evaluate(ctx, locationID, landUsage, expansion)
}

// CreateGoldStandard stores an admin-authored reference answer for a location
func (s *answerService) CreateGoldStandard(ctx context.Context, adminID int64, input *models.AnswerInput) (*models.Answer, error) {
	if err := validation.ValidateAnswer(input); err != nil {
		return nil, err
	}

	var answer *models.Answer
	err := s.repos.Tx.WithTx(ctx, nil, func(r *repository.Repositories) error {
		var err error
		answer, err = createGoldStandard(ctx, r, adminID, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("answer_id", answer.ID).
		Int64("location_id", answer.LocationID).
		Int64("admin_id", adminID).
		Msg("Gold standard created")

	return answer, nil
}

// createGoldStandard is the only writer of the gold standard status on insert
func createGoldStandard(ctx context.Context, r *repository.Repositories, adminID int64, input *models.AnswerInput) (*models.Answer, error) {
	locationID := *input.LocationID
	loc, err := r.Location.GetByID(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("load location %d: %w", locationID, err)
	}
	if loc == nil {
		return nil, fmt.Errorf("location %d: %w", locationID, ErrNotFound)
	}

	existing, err := r.Answer.GoldByLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("load gold standard of location %d: %w", locationID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("location %d: %w", locationID, ErrDuplicateGoldStandard)
	}

	answer := input.ToAnswer(adminID, models.GoldStandard)
	if err := r.Answer.Create(ctx, answer); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("location %d: %w", locationID, ErrDuplicateGoldStandard)
		}
		return nil, fmt.Errorf("store gold standard: %w", err)
	}
	return answer, nil
}

// SetGoldStandardStatus corrects the status tag of a stored answer
func (s *answerService) SetGoldStandardStatus(ctx context.Context, answerID int64, status models.GoldStandardStatus) (*models.Answer, error) {
	if !status.Valid() {
		return nil, validation.Errors{{
			Field:   "gold_standard_status",
			Message: "invalid gold_standard_status, must be one of: 0, 1, 2",
			Value:   int(status),
		}}
	}

	var answer *models.Answer
	err := s.repos.Tx.WithTx(ctx, nil, func(r *repository.Repositories) error {
		var err error
		answer, err = r.Answer.GetByID(ctx, answerID)
		if err != nil {
			return fmt.Errorf("load answer %d: %w", answerID, err)
		}
		if answer == nil {
			return fmt.Errorf("answer %d: %w", answerID, ErrNotFound)
		}

		if status == models.GoldStandard {
			gold, err := r.Answer.GoldByLocation(ctx, answer.LocationID)
			if err != nil {
				return fmt.Errorf("load gold standard of location %d: %w", answer.LocationID, err)
			}
			if gold != nil && gold.ID != answer.ID {
				return fmt.Errorf("location %d: %w", answer.LocationID, ErrDuplicateGoldStandard)
			}
		}

		if _, err := r.Answer.UpdateGoldStandardStatus(ctx, answerID, status); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("location %d: %w", answer.LocationID, ErrDuplicateGoldStandard)
			}
			return fmt.Errorf("update answer %d: %w", answerID, err)
		}
		answer.GoldStandardStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("answer_id", answerID).
		Str("status", status.String()).
		Msg("Answer gold standard status changed")

	return answer, nil
}

// Delete removes a stored answer
func (s *answerService) Delete(ctx context.Context, answerID int64) error {
	deleted, err := s.repos.Answer.Delete(ctx, answerID)
	if err != nil {
		return fmt.Errorf("delete answer %d: %w", answerID, err)
	}
	if !deleted {
		return fmt.Errorf("answer %d: %w", answerID, ErrNotFound)
	}

	s.log.Info().Int64("answer_id", answerID).Msg("Answer deleted")
	return nil
}
