package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/crowd-labeling-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ExportHandler handles export endpoints
type ExportHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(services *service.Services, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		services: services,
		log:      log.With().Str("handler", "export").Logger(),
	}
}

// StreamExport handles GET /v1/admin/exports?resource=...&format=...
// Streams the export directly to the response
func (h *ExportHandler) StreamExport(c *gin.Context) {
	ctx := c.Request.Context()

	resource := c.Query("resource")
	if resource == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource parameter is required (answers, locations)"})
		return
	}
	if resource != "answers" && resource != "locations" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource must be one of: answers, locations"})
		return
	}

	format := c.Query("format")
	if format == "" {
		format = service.FormatCSV
	}
	if format != service.FormatCSV && format != service.FormatNDJSON && format != service.FormatJSON {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: csv, ndjson, json"})
		return
	}

	h.log.Info().
		Str("resource", resource).
		Str("format", format).
		Msg("Starting streaming export")

	filename := fmt.Sprintf("%s_%s.%s", resource, time.Now().UTC().Format("20060102T150405"), format)
	c.Header("Content-Type", service.ContentType(format))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)

	var err error
	switch resource {
	case "answers":
		err = h.services.Export.StreamAnswers(ctx, c.Writer, format)
	case "locations":
		err = h.services.Export.StreamLocations(ctx, c.Writer, format)
	}

	if err != nil {
		h.log.Error().Err(err).Str("resource", resource).Msg("Export failed")
		// Can't return error JSON after streaming has started
		return
	}
}
