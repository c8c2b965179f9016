package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ImportHandler handles CSV upload endpoints
type ImportHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "import").Logger(),
	}
}

// CreateImport handles POST /v1/admin/imports
// Accepts a multipart CSV upload in the "file" field and imports it synchronously
func (h *ImportHandler) CreateImport(c *gin.Context) {
	ctx := c.Request.Context()

	// Get resource type
	resource := models.ImportResource(c.Query("resource"))
	if resource == "" {
		resource = models.ImportResource(c.PostForm("resource"))
	}
	if resource == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource parameter is required (locations, gold_standards)"})
		return
	}
	if resource != models.ImportLocations && resource != models.ImportGoldStandards {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource must be one of: locations, gold_standards"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Import.MaxUploadSize)

	// Handle file upload
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return
	}
	defer file.Close()

	// Validate file size
	if header.Size > h.cfg.Import.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("file too large, max size is %d MB", h.cfg.Import.MaxUploadSize/(1024*1024)),
		})
		return
	}

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "import requires a CSV file"})
		return
	}

	h.log.Info().
		Str("resource", string(resource)).
		Str("file", header.Filename).
		Int64("size_bytes", header.Size).
		Msg("Import started")

	var result *models.ImportResult
	switch resource {
	case models.ImportLocations:
		result, err = h.services.Import.ImportLocations(ctx, file)
	case models.ImportGoldStandards:
		result, err = h.services.Import.ImportGoldStandards(ctx, file, currentUser(c).ClientID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
