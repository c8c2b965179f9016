package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/rs/zerolog"
)

// Supported export formats
const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
)

// ContentType returns the MIME type of an export format
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

var answerCSVHeader = []string{
	"user_id", "client_id", "location_id", "factory_id", "answer_id", "land_usage", "expansion",
	"gold_standard_status", "year_old", "year_new", "bbox_left_top_lat", "bbox_left_top_lng",
	"bbox_bottom_right_lat", "bbox_bottom_right_lng", "zoom_level", "timestamp",
}

var locationCSVHeader = []string{"factory_id", "id", "done_at", "answer_count"}

// exportService is the concrete implementation of ExportService
type exportService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

// newExportService creates a new ExportService
func newExportService(repos *repository.Repositories, log zerolog.Logger) *exportService {
	return &exportService{
		repos: repos,
		log:   log.With().Str("service", "export").Logger(),
	}
}

// StreamAnswers streams every answer in the specified format, grouped by user
func (s *exportService) StreamAnswers(ctx context.Context, w io.Writer, format string) error {
	s.log.Info().Str("format", format).Msg("Starting answers export")

	var count int
	var err error
	switch format {
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(answerCSVHeader); err != nil {
			return err
		}
		err = s.repos.Answer.StreamAll(ctx, func(a *models.AnswerExport) error {
			count++
			return writer.Write(answerCSVRow(a))
		})
		writer.Flush()
		if err == nil {
			err = writer.Error()
		}
	case FormatNDJSON, FormatJSON:
		enc := newRecordEncoder(w, format)
		err = s.repos.Answer.StreamAll(ctx, func(a *models.AnswerExport) error {
			count++
			return enc.encode(a)
		})
		err = enc.close(err)
	default:
		return unsupportedFormat(format)
	}

	s.log.Info().Int("count", count).Msg("Answers export completed")
	return err
}

// StreamLocations streams every location with its answer count
func (s *exportService) StreamLocations(ctx context.Context, w io.Writer, format string) error {
	s.log.Info().Str("format", format).Msg("Starting locations export")

	var count int
	var err error
	switch format {
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(locationCSVHeader); err != nil {
			return err
		}
		err = s.repos.Location.StreamAll(ctx, func(l *models.LocationSummary) error {
			count++
			doneAt := ""
			if l.DoneAt != nil {
				doneAt = l.DoneAt.UTC().Format(time.RFC3339)
			}
			return writer.Write([]string{
				l.FactoryID,
				strconv.FormatInt(l.ID, 10),
				doneAt,
				strconv.Itoa(l.AnswerCount),
			})
		})
		writer.Flush()
		if err == nil {
			err = writer.Error()
		}
	case FormatNDJSON, FormatJSON:
		enc := newRecordEncoder(w, format)
		err = s.repos.Location.StreamAll(ctx, func(l *models.LocationSummary) error {
			count++
			return enc.encode(l)
		})
		err = enc.close(err)
	default:
		return unsupportedFormat(format)
	}

	s.log.Info().Int("count", count).Msg("Locations export completed")
	return err
}

func answerCSVRow(a *models.AnswerExport) []string {
	return []string{
		strconv.FormatInt(a.UserID, 10),
		a.ClientID,
		strconv.FormatInt(a.LocationID, 10),
		a.FactoryID,
		strconv.FormatInt(a.ID, 10),
		strconv.Itoa(int(a.LandUsage)),
		strconv.Itoa(int(a.Expansion)),
		strconv.Itoa(int(a.GoldStandardStatus)),
		strconv.Itoa(a.YearOld),
		strconv.Itoa(a.YearNew),
		formatFloat(a.BBoxLeftTopLat),
		formatFloat(a.BBoxLeftTopLng),
		formatFloat(a.BBoxBottomRightLat),
		formatFloat(a.BBoxBottomRightLng),
		strconv.Itoa(a.ZoomLevel),
		a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func unsupportedFormat(format string) error {
	return validation.Errors{{
		Field:   "format",
		Message: fmt.Sprintf("unsupported format, must be one of: %s, %s, %s", FormatCSV, FormatNDJSON, FormatJSON),
		Value:   format,
	}}
}

// recordEncoder writes records as NDJSON lines or as one JSON array
type recordEncoder struct {
	w       io.Writer
	array   bool
	first   bool
	count   int
	flusher http.Flusher
}

func newRecordEncoder(w io.Writer, format string) *recordEncoder {
	flusher, _ := w.(http.Flusher)
	return &recordEncoder{w: w, array: format == FormatJSON, first: true, flusher: flusher}
}

func (e *recordEncoder) encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if e.array {
		sep := ","
		if e.first {
			sep = "["
		}
		if _, err := io.WriteString(e.w, sep); err != nil {
			return err
		}
	}
	e.first = false

	if _, err := e.w.Write(data); err != nil {
		return err
	}
	if !e.array {
		if _, err := io.WriteString(e.w, "\n"); err != nil {
			return err
		}
	}

	// Flush every 100 records for streaming
	e.count++
	if e.count%100 == 0 && e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// close terminates a JSON array; err is the streaming error so far
func (e *recordEncoder) close(err error) error {
	if err != nil || !e.array {
		return err
	}
	closing := "]"
	if e.first {
		closing = "[]"
	}
	_, err = io.WriteString(e.w, closing)
	return err
}
