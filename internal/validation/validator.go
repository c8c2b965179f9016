package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crowd-labeling-api/internal/models"
)

// MinBatchSize is the smallest answer batch that can embed a gold check and real work
const MinBatchSize = 2

// maxFactoryIDLength matches the locations.factory_id column
const maxFactoryIDLength = 255

// ErrInvalid is matched by every validation failure
var ErrInvalid = errors.New("validation failed")

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Errors is a list of validation errors usable as an error value
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, ve.Field+": "+ve.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrInvalid) hold for any Errors value
func (e Errors) Is(target error) bool {
	return target == ErrInvalid
}

func asError(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return Errors(errs)
}

// ValidateSampleRequest checks the sizes of a location batch request
func ValidateSampleRequest(totalSize, goldSize int) error {
	var errs []ValidationError

	if totalSize < 0 {
		errs = append(errs, ValidationError{Field: "size", Message: "size must not be negative", Value: totalSize})
	}
	if goldSize < 0 {
		errs = append(errs, ValidationError{Field: "gold_standard_size", Message: "gold_standard_size must not be negative", Value: goldSize})
	}
	if len(errs) == 0 && goldSize > totalSize {
		errs = append(errs, ValidationError{
			Field:   "gold_standard_size",
			Message: fmt.Sprintf("gold_standard_size must not exceed size (%d)", totalSize),
			Value:   goldSize,
		})
	}

	return asError(errs)
}

// ValidateAnswerBatch checks a submitted batch as a whole. Any error rejects the entire batch.
func ValidateAnswerBatch(inputs []*models.AnswerInput) error {
	if inputs == nil {
		return Errors{{Field: "data", Message: "data is required"}}
	}
	if len(inputs) < MinBatchSize {
		return Errors{{
			Field:   "data",
			Message: fmt.Sprintf("at least %d answers are required", MinBatchSize),
			Value:   len(inputs),
		}}
	}

	var errs []ValidationError
	for i, in := range inputs {
		errs = append(errs, validateAnswer(fmt.Sprintf("data[%d].", i), in)...)
	}
	return asError(errs)
}

// ValidateAnswer checks a single answer, such as an admin-authored gold standard
func ValidateAnswer(in *models.AnswerInput) error {
	return asError(validateAnswer("", in))
}

func validateAnswer(prefix string, in *models.AnswerInput) []ValidationError {
	if in == nil {
		return []ValidationError{{Field: strings.TrimSuffix(prefix, "."), Message: "answer is required"}}
	}

	var errs []ValidationError

	// Validate location_id
	if in.LocationID == nil {
		errs = append(errs, ValidationError{Field: prefix + "location_id", Message: "location_id is required"})
	} else if *in.LocationID <= 0 {
		errs = append(errs, ValidationError{Field: prefix + "location_id", Message: "location_id must be positive", Value: *in.LocationID})
	}

	// Validate source_url_root
	if in.SourceURLRoot == nil {
		errs = append(errs, ValidationError{Field: prefix + "source_url_root", Message: "source_url_root is required"})
	}

	// Validate land_usage
	if in.LandUsage == nil {
		errs = append(errs, ValidationError{Field: prefix + "land_usage", Message: "land_usage is required"})
	} else if !models.LandUsage(*in.LandUsage).Valid() {
		errs = append(errs, ValidationError{
			Field:   prefix + "land_usage",
			Message: "invalid land_usage, must be one of: 0, 1, 2",
			Value:   *in.LandUsage,
		})
	}

	// Validate expansion
	if in.Expansion == nil {
		errs = append(errs, ValidationError{Field: prefix + "expansion", Message: "expansion is required"})
	} else if !models.Expansion(*in.Expansion).Valid() {
		errs = append(errs, ValidationError{
			Field:   prefix + "expansion",
			Message: "invalid expansion, must be one of: 0, 1, 2",
			Value:   *in.Expansion,
		})
	}

	if in.ZoomLevel != nil && *in.ZoomLevel < 0 {
		errs = append(errs, ValidationError{Field: prefix + "zoom_level", Message: "zoom_level must not be negative", Value: *in.ZoomLevel})
	}

	return errs
}

// Validator checks CSV import rows against what is already stored and what
// earlier rows of the same file introduced
type Validator struct {
	factoryIDCache map[string]bool
	locationIndex  map[string]int64
	goldCache      map[int64]bool
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		factoryIDCache: make(map[string]bool),
		locationIndex:  make(map[string]int64),
		goldCache:      make(map[int64]bool),
	}
}

// SetFactoryIDCache sets the cache of already stored factory IDs
func (v *Validator) SetFactoryIDCache(ids []string) {
	for _, id := range ids {
		v.factoryIDCache[id] = true
	}
}

// AddFactoryID adds a factory ID to the duplicate cache
func (v *Validator) AddFactoryID(id string) {
	v.factoryIDCache[id] = true
}

// HasFactoryID reports whether a factory ID is already stored or seen earlier in the file
func (v *Validator) HasFactoryID(id string) bool {
	return v.factoryIDCache[strings.TrimSpace(id)]
}

// SetLocation registers a stored location for gold standard lookups
func (v *Validator) SetLocation(factoryID string, locationID int64) {
	v.locationIndex[factoryID] = locationID
}

// SetGoldLocations sets the locations that already carry a gold standard
func (v *Validator) SetGoldLocations(ids []int64) {
	for _, id := range ids {
		v.goldCache[id] = true
	}
}

// AddGoldLocation marks a location as carrying a gold standard
func (v *Validator) AddGoldLocation(id int64) {
	v.goldCache[id] = true
}

// ValidateLocation validates a location row
func (v *Validator) ValidateLocation(row *models.LocationCSV) []ValidationError {
	var errors []ValidationError

	factoryID := strings.TrimSpace(row.FactoryID)
	if factoryID == "" {
		errors = append(errors, ValidationError{Field: "factory_id", Message: "factory_id is required"})
	} else if len(factoryID) > maxFactoryIDLength {
		errors = append(errors, ValidationError{
			Field:   "factory_id",
			Message: fmt.Sprintf("factory_id exceeds %d characters", maxFactoryIDLength),
			Value:   factoryID,
		})
	}

	return errors
}

// ValidateGoldStandard validates a gold standard row and, when it is valid,
// returns the answer input to store for it
func (v *Validator) ValidateGoldStandard(row *models.GoldStandardCSV) (*models.AnswerInput, []ValidationError) {
	var errors []ValidationError
	in := &models.AnswerInput{}

	// Validate factory_id (FK)
	factoryID := strings.TrimSpace(row.FactoryID)
	if factoryID == "" {
		errors = append(errors, ValidationError{Field: "factory_id", Message: "factory_id is required"})
	} else if locationID, ok := v.locationIndex[factoryID]; !ok {
		errors = append(errors, ValidationError{Field: "factory_id", Message: "referenced location does not exist", Value: factoryID})
	} else if v.goldCache[locationID] {
		errors = append(errors, ValidationError{Field: "factory_id", Message: "location already has a gold standard", Value: factoryID})
	} else {
		in.LocationID = &locationID
	}

	in.YearOld = parseIntField(row.YearOld, "year_old", &errors)
	in.YearNew = parseIntField(row.YearNew, "year_new", &errors)

	if lu := parseIntField(row.LandUsage, "land_usage", &errors); lu == nil {
		if strings.TrimSpace(row.LandUsage) == "" {
			errors = append(errors, ValidationError{Field: "land_usage", Message: "land_usage is required"})
		}
	} else if !models.LandUsage(*lu).Valid() {
		errors = append(errors, ValidationError{Field: "land_usage", Message: "invalid land_usage, must be one of: 0, 1, 2", Value: row.LandUsage})
	} else {
		in.LandUsage = lu
	}

	if ex := parseIntField(row.Expansion, "expansion", &errors); ex == nil {
		if strings.TrimSpace(row.Expansion) == "" {
			errors = append(errors, ValidationError{Field: "expansion", Message: "expansion is required"})
		}
	} else if !models.Expansion(*ex).Valid() {
		errors = append(errors, ValidationError{Field: "expansion", Message: "invalid expansion, must be one of: 0, 1, 2", Value: row.Expansion})
	} else {
		in.Expansion = ex
	}

	sourceURLRoot := strings.TrimSpace(row.SourceURLRoot)
	in.SourceURLRoot = &sourceURLRoot

	if len(errors) > 0 {
		return nil, errors
	}
	return in, nil
}

// parseIntField parses an optional integer column, recording an error on bad input
func parseIntField(raw, field string, errs *[]ValidationError) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: field + " must be an integer", Value: raw})
		return nil
	}
	return &n
}
