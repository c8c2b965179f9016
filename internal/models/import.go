package models

import (
	"time"
)

// ImportResource names what a CSV import loads
type ImportResource string

const (
	ImportLocations     ImportResource = "locations"
	ImportGoldStandards ImportResource = "gold_standards"
)

// ValidationError represents a single rejected import row
type ValidationError struct {
	Line    int         `json:"line"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ImportResult summarises one import run
type ImportResult struct {
	ID              string            `json:"import_id"`
	Resource        ImportResource    `json:"resource"`
	TotalRecords    int               `json:"total_records"`
	SuccessfulCount int               `json:"successful"`
	SkippedCount    int               `json:"skipped"`
	FailedCount     int               `json:"failed"`
	DurationMs      int64             `json:"duration_ms"`
	RowsPerSec      float64           `json:"rows_per_sec,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
	Errors          []ValidationError `json:"errors,omitempty"`
}

// LocationCSV is one row of a location import file
type LocationCSV struct {
	FactoryID string
}

// GoldStandardCSV is one row of a gold standard import file, kept as raw text until validated
type GoldStandardCSV struct {
	FactoryID     string
	YearOld       string
	YearNew       string
	LandUsage     string
	Expansion     string
	SourceURLRoot string
}
