package api

import (
	"net/http"
	"strconv"

	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LocationHandler hands out location batches to labeling users
type LocationHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *LocationHandler {
	return &LocationHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "location").Logger(),
	}
}

// Sample handles GET /v1/locations?size=&gold_standard_size=
func (h *LocationHandler) Sample(c *gin.Context) {
	var errs validation.Errors
	size := queryInt(c, "size", h.cfg.Sampling.DefaultSize, &errs)
	goldSize := queryInt(c, "gold_standard_size", h.cfg.Sampling.DefaultGoldSize, &errs)
	if len(errs) > 0 {
		respondError(c, errs)
		return
	}

	locations, err := h.services.Location.Sample(c.Request.Context(), currentUser(c).ID, size, goldSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": locations})
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, name string, def int, errs *validation.Errors) int {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, validation.ValidationError{Field: name, Message: name + " must be an integer", Value: raw})
		return 0
	}
	return n
}

// paramID reads a positive integer path parameter, answering 400 when it is not one
func paramID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, validation.Errors{{Field: "id", Message: "id must be a positive integer", Value: raw}})
		return 0, false
	}
	return id, true
}
