package service

import (
	"errors"

	"github.com/crowd-labeling-api/internal/validation"
)

var (
	// ErrValidation is matched by every rejected request shape; the concrete
	// error is a validation.Errors listing the offending fields
	ErrValidation = validation.ErrInvalid

	// ErrNoGoldStandards means no location carries a gold standard yet
	ErrNoGoldStandards = errors.New("no gold standard locations available")

	// ErrInsufficientGoldStandards means fewer gold locations exist than requested
	ErrInsufficientGoldStandards = errors.New("not enough gold standard locations")

	// ErrInsufficientLocations means the unlabeled pool cannot fill the request
	ErrInsufficientLocations = errors.New("not enough locations left to label")

	// ErrNoGoldCheck means a submitted batch answered no gold standard location
	ErrNoGoldCheck = errors.New("answer batch contains no gold standard check")

	// ErrNotFound is returned for unknown users, locations and answers
	ErrNotFound = errors.New("not found")

	// ErrDuplicateGoldStandard means the location already has a gold standard
	ErrDuplicateGoldStandard = errors.New("location already has a gold standard")

	// ErrForbidden is returned for banned users
	ErrForbidden = errors.New("forbidden")
)
