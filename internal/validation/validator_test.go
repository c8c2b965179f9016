package validation

import (
	"errors"
	"testing"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/google/go-cmp/cmp"
)

func intPtr(v int) *int { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func validInput(locationID int64) *models.AnswerInput {
	return &models.AnswerInput{
		LocationID:    int64Ptr(locationID),
		SourceURLRoot: strPtr("https://tiles.example.com/"),
		LandUsage:     intPtr(1),
		Expansion:     intPtr(1),
		YearOld:       intPtr(2016),
		YearNew:       intPtr(2020),
	}
}

func hasField(errs Errors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateSampleRequest(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		gold       int
		wantFields []string
	}{
		{name: "valid sizes", total: 5, gold: 1},
		{name: "gold equals total", total: 2, gold: 2},
		{name: "zero sizes", total: 0, gold: 0},
		{name: "negative total", total: -1, gold: 0, wantFields: []string{"size"}},
		{name: "negative gold", total: 3, gold: -2, wantFields: []string{"gold_standard_size"}},
		{name: "gold exceeds total", total: 2, gold: 3, wantFields: []string{"gold_standard_size"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSampleRequest(tt.total, tt.gold)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateSampleRequest() unexpected error: %v", err)
				}
				return
			}

			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("ValidateSampleRequest() error = %v, want ErrInvalid", err)
			}
			var errs Errors
			if !errors.As(err, &errs) {
				t.Fatalf("expected Errors, got %T", err)
			}
			for _, f := range tt.wantFields {
				if !hasField(errs, f) {
					t.Errorf("Expected error for field '%s' but not found in %v", f, errs)
				}
			}
		})
	}
}

func TestValidateAnswerBatch(t *testing.T) {
	tests := []struct {
		name       string
		batch      []*models.AnswerInput
		wantErrors int
		wantFields []string
	}{
		{
			name:  "valid batch",
			batch: []*models.AnswerInput{validInput(1), validInput(2)},
		},
		{
			name:       "nil batch",
			batch:      nil,
			wantErrors: 1,
			wantFields: []string{"data"},
		},
		{
			name:       "single answer",
			batch:      []*models.AnswerInput{validInput(1)},
			wantErrors: 1,
			wantFields: []string{"data"},
		},
		{
			name: "missing location_id",
			batch: func() []*models.AnswerInput {
				a := validInput(1)
				a.LocationID = nil
				return []*models.AnswerInput{validInput(2), a}
			}(),
			wantErrors: 1,
			wantFields: []string{"data[1].location_id"},
		},
		{
			name: "missing source_url_root",
			batch: func() []*models.AnswerInput {
				a := validInput(1)
				a.SourceURLRoot = nil
				return []*models.AnswerInput{a, validInput(2)}
			}(),
			wantErrors: 1,
			wantFields: []string{"data[0].source_url_root"},
		},
		{
			name: "empty source_url_root is present",
			batch: func() []*models.AnswerInput {
				a := validInput(1)
				a.SourceURLRoot = strPtr("")
				return []*models.AnswerInput{a, validInput(2)}
			}(),
		},
		{
			name: "land_usage and expansion out of range",
			batch: func() []*models.AnswerInput {
				a := validInput(1)
				a.LandUsage = intPtr(3)
				a.Expansion = intPtr(-1)
				return []*models.AnswerInput{a, validInput(2)}
			}(),
			wantErrors: 2,
			wantFields: []string{"data[0].land_usage", "data[0].expansion"},
		},
		{
			name: "missing enums on several entries",
			batch: func() []*models.AnswerInput {
				a := validInput(1)
				a.LandUsage = nil
				b := validInput(2)
				b.Expansion = nil
				return []*models.AnswerInput{a, b, validInput(3)}
			}(),
			wantErrors: 2,
			wantFields: []string{"data[0].land_usage", "data[1].expansion"},
		},
		{
			name:       "null entry",
			batch:      []*models.AnswerInput{validInput(1), nil},
			wantErrors: 1,
			wantFields: []string{"data[1]"},
		},
		{
			name: "optional fields absent",
			batch: []*models.AnswerInput{
				{LocationID: int64Ptr(1), SourceURLRoot: strPtr("s"), LandUsage: intPtr(0), Expansion: intPtr(0)},
				{LocationID: int64Ptr(2), SourceURLRoot: strPtr("s"), LandUsage: intPtr(2), Expansion: intPtr(2)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswerBatch(tt.batch)
			if tt.wantErrors == 0 {
				if err != nil {
					t.Fatalf("ValidateAnswerBatch() unexpected error: %v", err)
				}
				return
			}

			var errs Errors
			if !errors.As(err, &errs) {
				t.Fatalf("ValidateAnswerBatch() error = %v, want Errors", err)
			}
			if len(errs) != tt.wantErrors {
				t.Errorf("ValidateAnswerBatch() got %d errors, want %d. Errors: %v", len(errs), tt.wantErrors, errs)
			}
			for _, f := range tt.wantFields {
				if !hasField(errs, f) {
					t.Errorf("Expected error for field '%s' but not found", f)
				}
			}
		})
	}
}

func TestValidateAnswer_ReportsValues(t *testing.T) {
	in := validInput(-4)
	in.ZoomLevel = intPtr(-1)

	err := ValidateAnswer(in)

	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("ValidateAnswer() error = %v, want Errors", err)
	}
	want := Errors{
		{Field: "location_id", Message: "location_id must be positive", Value: int64(-4)},
		{Field: "zoom_level", Message: "zoom_level must not be negative", Value: -1},
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Errorf("ValidateAnswer() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateLocation(t *testing.T) {
	validator := NewValidator()
	validator.SetFactoryIDCache([]string{"F-1"})

	tests := []struct {
		name       string
		row        *models.LocationCSV
		wantErrors int
	}{
		{name: "valid", row: &models.LocationCSV{FactoryID: "F-2"}},
		{name: "empty", row: &models.LocationCSV{FactoryID: "  "}, wantErrors: 1},
		{name: "too long", row: &models.LocationCSV{FactoryID: string(make([]byte, 300))}, wantErrors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validator.ValidateLocation(tt.row)
			if len(errs) != tt.wantErrors {
				t.Errorf("ValidateLocation() got %d errors, want %d. Errors: %v", len(errs), tt.wantErrors, errs)
			}
		})
	}

	if !validator.HasFactoryID(" F-1 ") {
		t.Error("F-1 should be known")
	}
	if validator.HasFactoryID("F-2") {
		t.Error("F-2 should not be known before AddFactoryID")
	}
	validator.AddFactoryID("F-2")
	if !validator.HasFactoryID("F-2") {
		t.Error("F-2 should be known after AddFactoryID")
	}
}

func TestValidateGoldStandard(t *testing.T) {
	newValidator := func() *Validator {
		v := NewValidator()
		v.SetLocation("F-1", 10)
		v.SetLocation("F-2", 20)
		v.SetGoldLocations([]int64{20})
		return v
	}

	tests := []struct {
		name       string
		row        *models.GoldStandardCSV
		wantFields []string
	}{
		{
			name: "valid row",
			row:  &models.GoldStandardCSV{FactoryID: "F-1", YearOld: "2016", YearNew: "2020", LandUsage: "1", Expansion: "2"},
		},
		{
			name:       "unknown factory",
			row:        &models.GoldStandardCSV{FactoryID: "F-9", LandUsage: "1", Expansion: "1"},
			wantFields: []string{"factory_id"},
		},
		{
			name:       "location already has gold",
			row:        &models.GoldStandardCSV{FactoryID: "F-2", LandUsage: "1", Expansion: "1"},
			wantFields: []string{"factory_id"},
		},
		{
			name:       "non integer year",
			row:        &models.GoldStandardCSV{FactoryID: "F-1", YearOld: "abc", LandUsage: "1", Expansion: "1"},
			wantFields: []string{"year_old"},
		},
		{
			name:       "missing enums",
			row:        &models.GoldStandardCSV{FactoryID: "F-1"},
			wantFields: []string{"land_usage", "expansion"},
		},
		{
			name:       "enum out of range",
			row:        &models.GoldStandardCSV{FactoryID: "F-1", LandUsage: "7", Expansion: "1"},
			wantFields: []string{"land_usage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, errs := newValidator().ValidateGoldStandard(tt.row)
			if len(tt.wantFields) == 0 {
				if len(errs) != 0 {
					t.Fatalf("ValidateGoldStandard() unexpected errors: %v", errs)
				}
				if in == nil || *in.LocationID != 10 || *in.LandUsage != 1 || *in.Expansion != 2 {
					t.Fatalf("ValidateGoldStandard() returned %+v", in)
				}
				if err := ValidateAnswer(in); err != nil {
					t.Errorf("parsed input should validate: %v", err)
				}
				return
			}

			if in != nil {
				t.Error("expected no input for an invalid row")
			}
			if len(errs) != len(tt.wantFields) {
				t.Errorf("got %d errors, want %d: %v", len(errs), len(tt.wantFields), errs)
			}
			for _, f := range tt.wantFields {
				if !hasField(Errors(errs), f) {
					t.Errorf("Expected error for field '%s' but not found", f)
				}
			}
		})
	}
}

func TestValidateGoldStandard_DuplicateInFile(t *testing.T) {
	v := NewValidator()
	v.SetLocation("F-1", 10)

	row := &models.GoldStandardCSV{FactoryID: "F-1", LandUsage: "1", Expansion: "1"}
	in, errs := v.ValidateGoldStandard(row)
	if len(errs) != 0 {
		t.Fatalf("first row should pass: %v", errs)
	}
	v.AddGoldLocation(*in.LocationID)

	if _, errs := v.ValidateGoldStandard(row); len(errs) != 1 {
		t.Errorf("second gold row for the same location should fail, got %v", errs)
	}
}
