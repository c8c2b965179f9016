package mocks

import (
	"context"
	"io"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
)

// MockImportService is a mock implementation of ImportService
type MockImportService struct {
	ImportLocationsFunc     func(ctx context.Context, r io.Reader) (*models.ImportResult, error)
	ImportGoldStandardsFunc func(ctx context.Context, r io.Reader, adminClientID string) (*models.ImportResult, error)

	// Uploads records the bytes received per resource
	Uploads map[models.ImportResource][]byte
	Admins  []string
}

// Verify interface compliance
var _ service.ImportService = (*MockImportService)(nil)

func NewMockImportService() *MockImportService {
	return &MockImportService{
		Uploads: make(map[models.ImportResource][]byte),
	}
}

func (m *MockImportService) ImportLocations(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	if m.ImportLocationsFunc != nil {
		return m.ImportLocationsFunc(ctx, r)
	}
	return m.record(models.ImportLocations, r)
}

func (m *MockImportService) ImportGoldStandards(ctx context.Context, r io.Reader, adminClientID string) (*models.ImportResult, error) {
	if m.ImportGoldStandardsFunc != nil {
		return m.ImportGoldStandardsFunc(ctx, r, adminClientID)
	}
	m.Admins = append(m.Admins, adminClientID)
	return m.record(models.ImportGoldStandards, r)
}

func (m *MockImportService) record(resource models.ImportResource, r io.Reader) (*models.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.Uploads[resource] = data
	return &models.ImportResult{
		ID:       "test-import-id",
		Resource: resource,
	}, nil
}

// MockExportService is a mock implementation of ExportService
type MockExportService struct {
	StreamAnswersFunc   func(ctx context.Context, w io.Writer, format string) error
	StreamLocationsFunc func(ctx context.Context, w io.Writer, format string) error
}

// Verify interface compliance
var _ service.ExportService = (*MockExportService)(nil)

func NewMockExportService() *MockExportService {
	return &MockExportService{}
}

func (m *MockExportService) StreamAnswers(ctx context.Context, w io.Writer, format string) error {
	if m.StreamAnswersFunc != nil {
		return m.StreamAnswersFunc(ctx, w, format)
	}
	return nil
}

func (m *MockExportService) StreamLocations(ctx context.Context, w io.Writer, format string) error {
	if m.StreamLocationsFunc != nil {
		return m.StreamLocationsFunc(ctx, w, format)
	}
	return nil
}
