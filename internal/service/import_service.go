package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/metrics"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxReportedErrors caps the row errors returned with an import result
const maxReportedErrors = 1000

// importService is the concrete implementation of ImportService
type importService struct {
	repos *repository.Repositories
	cfg   *config.Config
	log   zerolog.Logger
}

// newImportService creates a new ImportService
func newImportService(repos *repository.Repositories, cfg *config.Config, log zerolog.Logger) *importService {
	return &importService{
		repos: repos,
		cfg:   cfg,
		log:   log.With().Str("service", "import").Logger(),
	}
}

// importRun tracks the counters of one import
type importRun struct {
	result *models.ImportResult
	start  time.Time
}

func newImportRun(resource models.ImportResource) *importRun {
	now := time.Now()
	return &importRun{
		result: &models.ImportResult{
			ID:        uuid.New().String(),
			Resource:  resource,
			StartedAt: now,
		},
		start: now,
	}
}

func (r *importRun) rowFailed(line int, errs []validation.ValidationError) {
	r.result.FailedCount++
	for _, e := range errs {
		if len(r.result.Errors) >= maxReportedErrors {
			return
		}
		r.result.Errors = append(r.result.Errors, models.ValidationError{
			Line:    line,
			Field:   e.Field,
			Message: e.Message,
			Value:   e.Value,
		})
	}
}

func (r *importRun) finish() *models.ImportResult {
	duration := time.Since(r.start)
	r.result.DurationMs = duration.Milliseconds()
	processed := r.result.SuccessfulCount + r.result.SkippedCount + r.result.FailedCount
	if processed > 0 && duration.Seconds() > 0 {
		r.result.RowsPerSec = float64(processed) / duration.Seconds()
	}
	r.result.CompletedAt = time.Now()
	return r.result
}

// ImportLocations loads a CSV with a factory_id column. Factory IDs already
// stored or repeated in the file are skipped.
func (s *importService) ImportLocations(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	reader, headerMap, err := openCSV(r, "factory_id")
	if err != nil {
		return nil, err
	}

	run := newImportRun(models.ImportLocations)
	s.log.Info().Str("import_id", run.result.ID).Msg("Starting location import")

	validator := validation.NewValidator()
	existing, err := s.repos.Location.GetAllFactoryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load factory ids: %w", err)
	}
	validator.SetFactoryIDCache(existing)

	batchSize := s.cfg.Import.BatchSize
	var batch []*models.Location
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := s.repos.Location.BatchInsert(ctx, batch)
		if err != nil {
			s.log.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch insert failed")
			return fmt.Errorf("insert locations: %w", err)
		}
		run.result.SuccessfulCount += inserted
		batch = batch[:0]
		return nil
	}

	lineNum := 1 // header
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		run.result.TotalRecords++
		if err != nil {
			run.rowFailed(lineNum, []validation.ValidationError{{Field: "csv", Message: err.Error()}})
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := &models.LocationCSV{FactoryID: getField(record, headerMap, "factory_id")}
		if errs := validator.ValidateLocation(row); len(errs) > 0 {
			run.rowFailed(lineNum, errs)
			continue
		}
		if validator.HasFactoryID(row.FactoryID) {
			run.result.SkippedCount++
			continue
		}

		factoryID := strings.TrimSpace(row.FactoryID)
		validator.AddFactoryID(factoryID)
		batch = append(batch, &models.Location{FactoryID: factoryID})

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	result := run.finish()
	metrics.RecordImport(string(result.Resource), result.SuccessfulCount, result.SkippedCount, result.FailedCount)
	s.log.Info().
		Str("import_id", result.ID).
		Int("total", result.TotalRecords).
		Int("successful", result.SuccessfulCount).
		Int("skipped", result.SkippedCount).
		Int("failed", result.FailedCount).
		Int64("duration_ms", result.DurationMs).
		Msg("Location import completed")

	return result, nil
}

// ImportGoldStandards loads gold standard answers from a CSV with the columns
// factory_id, year_old, year_new, land_usage, expansion and optionally
// source_url_root. Answers are authored by the admin user with the given
// client ID, which is created when missing.
func (s *importService) ImportGoldStandards(ctx context.Context, r io.Reader, adminClientID string) (*models.ImportResult, error) {
	adminClientID = strings.TrimSpace(adminClientID)
	if adminClientID == "" {
		return nil, validation.Errors{{Field: "admin", Message: "admin client id is required"}}
	}

	reader, headerMap, err := openCSV(r, "factory_id", "land_usage", "expansion")
	if err != nil {
		return nil, err
	}

	admin, err := getOrCreateUser(ctx, s.repos.User, adminClientID, models.ClientTypeAdmin)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin() {
		return nil, fmt.Errorf("user %q is not an admin: %w", adminClientID, ErrForbidden)
	}

	run := newImportRun(models.ImportGoldStandards)
	s.log.Info().Str("import_id", run.result.ID).Str("admin", adminClientID).Msg("Starting gold standard import")

	validator := validation.NewValidator()
	goldIDs, err := s.repos.Answer.GoldLocationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gold standard locations: %w", err)
	}
	validator.SetGoldLocations(goldIDs)

	lineNum := 1 // header
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		run.result.TotalRecords++
		if err != nil {
			run.rowFailed(lineNum, []validation.ValidationError{{Field: "csv", Message: err.Error()}})
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := &models.GoldStandardCSV{
			FactoryID:     getField(record, headerMap, "factory_id"),
			YearOld:       getField(record, headerMap, "year_old"),
			YearNew:       getField(record, headerMap, "year_new"),
			LandUsage:     getField(record, headerMap, "land_usage"),
			Expansion:     getField(record, headerMap, "expansion"),
			SourceURLRoot: getField(record, headerMap, "source_url_root"),
		}

		// Locations are looked up lazily so large stores are not preloaded
		if factoryID := strings.TrimSpace(row.FactoryID); factoryID != "" {
			loc, err := s.repos.Location.GetByFactoryID(ctx, factoryID)
			if err != nil {
				return nil, fmt.Errorf("load location %q: %w", factoryID, err)
			}
			if loc != nil {
				validator.SetLocation(factoryID, loc.ID)
			}
		}

		input, errs := validator.ValidateGoldStandard(row)
		if len(errs) > 0 {
			run.rowFailed(lineNum, errs)
			continue
		}

		err = s.repos.Tx.WithTx(ctx, nil, func(r *repository.Repositories) error {
			_, err := createGoldStandard(ctx, r, admin.ID, input)
			return err
		})
		if errors.Is(err, ErrDuplicateGoldStandard) || errors.Is(err, ErrNotFound) {
			run.rowFailed(lineNum, []validation.ValidationError{{Field: "factory_id", Message: err.Error(), Value: row.FactoryID}})
			continue
		}
		if err != nil {
			return nil, err
		}

		validator.AddGoldLocation(*input.LocationID)
		run.result.SuccessfulCount++
	}

	result := run.finish()
	metrics.RecordImport(string(result.Resource), result.SuccessfulCount, result.SkippedCount, result.FailedCount)
	s.log.Info().
		Str("import_id", result.ID).
		Int("total", result.TotalRecords).
		Int("successful", result.SuccessfulCount).
		Int("failed", result.FailedCount).
		Int64("duration_ms", result.DurationMs).
		Msg("Gold standard import completed")

	return result, nil
}

// openCSV reads the header row and checks the required columns are present
func openCSV(r io.Reader, required ...string) (*csv.Reader, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, validation.Errors{{Field: "file", Message: "file is empty"}}
	}
	if err != nil {
		return nil, nil, validation.Errors{{Field: "file", Message: fmt.Sprintf("invalid CSV header: %v", err)}}
	}

	headerMap := make(map[string]int)
	for i, h := range header {
		headerMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	var errs validation.Errors
	for _, col := range required {
		if _, ok := headerMap[col]; !ok {
			errs = append(errs, validation.ValidationError{Field: col, Message: "missing column " + col})
		}
	}
	if len(errs) > 0 {
		return nil, nil, errs
	}
	return reader, headerMap, nil
}

// getField safely gets a field from a CSV record
func getField(record []string, headerMap map[string]int, field string) string {
	if idx, ok := headerMap[field]; ok && idx < len(record) {
		return record[idx]
	}
	return ""
}
