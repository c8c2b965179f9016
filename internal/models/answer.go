package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// LandUsage is a user's judgment of what the land is used for
type LandUsage int

const (
	LandUsageUnknown  LandUsage = 0
	LandUsageBuilding LandUsage = 1
	LandUsageFarm     LandUsage = 2
)

// Valid reports whether u is a known land usage value
func (u LandUsage) Valid() bool {
	return u >= LandUsageUnknown && u <= LandUsageFarm
}

// Expansion is a user's judgment of whether the construction expanded
type Expansion int

const (
	ExpansionUnknown Expansion = 0
	ExpansionNone    Expansion = 1
	ExpansionYes     Expansion = 2
)

// Valid reports whether e is a known expansion value
func (e Expansion) Valid() bool {
	return e >= ExpansionUnknown && e <= ExpansionYes
}

// GoldStandardStatus tags every stored answer with its quality-control role.
// It is a closed set: an answer is either the gold standard of its location,
// or it was submitted in a batch that passed or failed the gold check.
type GoldStandardStatus int

const (
	GoldStandard GoldStandardStatus = 0
	GoldPassed   GoldStandardStatus = 1
	GoldFailed   GoldStandardStatus = 2
)

// Valid reports whether s is one of the three known statuses
func (s GoldStandardStatus) Valid() bool {
	switch s {
	case GoldStandard, GoldPassed, GoldFailed:
		return true
	}
	return false
}

func (s GoldStandardStatus) String() string {
	switch s {
	case GoldStandard:
		return "gold_standard"
	case GoldPassed:
		return "passed"
	case GoldFailed:
		return "failed"
	}
	return fmt.Sprintf("GoldStandardStatus(%d)", int(s))
}

// Value implements driver.Valuer
func (s GoldStandardStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid gold standard status %d", int(s))
	}
	return int64(s), nil
}

// Scan implements sql.Scanner
func (s *GoldStandardStatus) Scan(src interface{}) error {
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("cannot scan %T into GoldStandardStatus", src)
	}
	status := GoldStandardStatus(v)
	if !status.Valid() {
		return fmt.Errorf("invalid gold standard status %d", v)
	}
	*s = status
	return nil
}

// Answer is a single judgment a user made about a location for a pair of imagery years
type Answer struct {
	ID                 int64              `json:"id" db:"id"`
	LocationID         int64              `json:"location_id" db:"location_id"`
	UserID             int64              `json:"user_id" db:"user_id"`
	YearOld            int                `json:"year_old" db:"year_old"`
	YearNew            int                `json:"year_new" db:"year_new"`
	SourceURLRoot      string             `json:"source_url_root" db:"source_url_root"`
	LandUsage          LandUsage          `json:"land_usage" db:"land_usage"`
	Expansion          Expansion          `json:"expansion" db:"expansion"`
	GoldStandardStatus GoldStandardStatus `json:"gold_standard_status" db:"gold_standard_status"`
	BBoxLeftTopLat     float64            `json:"bbox_left_top_lat" db:"bbox_left_top_lat"`
	BBoxLeftTopLng     float64            `json:"bbox_left_top_lng" db:"bbox_left_top_lng"`
	BBoxBottomRightLat float64            `json:"bbox_bottom_right_lat" db:"bbox_bottom_right_lat"`
	BBoxBottomRightLng float64            `json:"bbox_bottom_right_lng" db:"bbox_bottom_right_lng"`
	ZoomLevel          int                `json:"zoom_level" db:"zoom_level"`
	CreatedAt          time.Time          `json:"timestamp" db:"created_at"`
}

// AnswerInput is one entry of a submitted batch.
// Pointer fields distinguish "absent" from the zero value.
type AnswerInput struct {
	LocationID         *int64   `json:"location_id"`
	YearOld            *int     `json:"year_old,omitempty"`
	YearNew            *int     `json:"year_new,omitempty"`
	SourceURLRoot      *string  `json:"source_url_root"`
	LandUsage          *int     `json:"land_usage"`
	Expansion          *int     `json:"expansion"`
	BBoxLeftTopLat     *float64 `json:"bbox_left_top_lat,omitempty"`
	BBoxLeftTopLng     *float64 `json:"bbox_left_top_lng,omitempty"`
	BBoxBottomRightLat *float64 `json:"bbox_bottom_right_lat,omitempty"`
	BBoxBottomRightLng *float64 `json:"bbox_bottom_right_lng,omitempty"`
	ZoomLevel          *int     `json:"zoom_level,omitempty"`
}

// ToAnswer builds the row to persist. Callers must have validated the input.
func (in *AnswerInput) ToAnswer(userID int64, status GoldStandardStatus) *Answer {
	return &Answer{
		LocationID:         *in.LocationID,
		UserID:             userID,
		YearOld:            intOrZero(in.YearOld),
		YearNew:            intOrZero(in.YearNew),
		SourceURLRoot:      *in.SourceURLRoot,
		LandUsage:          LandUsage(*in.LandUsage),
		Expansion:          Expansion(*in.Expansion),
		GoldStandardStatus: status,
		BBoxLeftTopLat:     floatOrZero(in.BBoxLeftTopLat),
		BBoxLeftTopLng:     floatOrZero(in.BBoxLeftTopLng),
		BBoxBottomRightLat: floatOrZero(in.BBoxBottomRightLat),
		BBoxBottomRightLng: floatOrZero(in.BBoxBottomRightLng),
		ZoomLevel:          intOrZero(in.ZoomLevel),
	}
}

// AnswerMatch selects answers of a location carrying a given status and judgment
type AnswerMatch struct {
	LocationID    int64
	Status        GoldStandardStatus
	LandUsage     LandUsage
	Expansion     Expansion
	ExcludeUserID int64
}

// AnswerExport is an answer joined with its user and location identifiers
type AnswerExport struct {
	Answer
	ClientID  string `json:"client_id"`
	FactoryID string `json:"factory_id"`
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
