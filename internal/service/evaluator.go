package service

import (
	"context"
	"fmt"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
)

// Verdict is the outcome of checking one judgment against a location's gold standard
type Verdict int

const (
	// NoGoldStandard means the location has no gold standard to check against
	NoGoldStandard Verdict = iota + 1
	Pass
	Fail
)

func (v Verdict) String() string {
	switch v {
	case NoGoldStandard:
		return "no_gold_standard"
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// status maps a gold check verdict to the tag stamped on a batch
func (v Verdict) status() (models.GoldStandardStatus, bool) {
	switch v {
	case Pass:
		return models.GoldPassed, true
	case Fail:
		return models.GoldFailed, true
	}
	return 0, false
}

// goldEvaluator checks judgments against gold standards. It only reads.
type goldEvaluator struct {
	answers repository.AnswerRepository
}

func newGoldEvaluator(answers repository.AnswerRepository) *goldEvaluator {
	return &goldEvaluator{answers: answers}
}

// Evaluate compares a judgment with the gold standard of the location
func (e *goldEvaluator) Evaluate(ctx context.Context, locationID int64, landUsage models.LandUsage, expansion models.Expansion) (Verdict, error) {
	gold, err := e.answers.GoldByLocation(ctx, locationID)
	if err != nil {
		return 0, fmt.Errorf("load gold standard of location %d: %w", locationID, err)
	}
	if gold == nil {
		return NoGoldStandard, nil
	}

	if gold.LandUsage == landUsage && gold.Expansion == expansion {
		return Pass, nil
	}
	return Fail, nil
}

// HasMatchingPassedAnswer reports whether another user already gave the same
// judgment for the location in a batch that passed its gold check
func (e *goldEvaluator) HasMatchingPassedAnswer(ctx context.Context, locationID int64, landUsage models.LandUsage, expansion models.Expansion, userID int64) (bool, error) {
	ok, err := e.answers.ExistsMatching(ctx, models.AnswerMatch{
		LocationID:    locationID,
		Status:        models.GoldPassed,
		LandUsage:     landUsage,
		Expansion:     expansion,
		ExcludeUserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("look up matching answers of location %d: %w", locationID, err)
	}
	return ok, nil
}
