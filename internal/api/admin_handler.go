package api

import (
	"net/http"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler handles user, location and gold standard administration
type AdminHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(services *service.Services, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		services: services,
		log:      log.With().Str("handler", "admin").Logger(),
	}
}

// ListUsers handles GET /v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.services.User.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

// SetClientType handles PATCH /v1/admin/users/:id/client_type
func (h *AdminHandler) SetClientType(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req struct {
		ClientType *int `json:"client_type"`
	}
	if !bindRequired(c, &req, "client_type", func() bool { return req.ClientType != nil }) {
		return
	}

	user, err := h.services.User.SetClientType(c.Request.Context(), id, models.ClientType(*req.ClientType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateLocation handles POST /v1/admin/locations
func (h *AdminHandler) CreateLocation(c *gin.Context) {
	var req struct {
		FactoryID string `json:"factory_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	loc, err := h.services.Location.Create(c.Request.Context(), req.FactoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loc)
}

// DeleteLocation handles DELETE /v1/admin/locations/:id
func (h *AdminHandler) DeleteLocation(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.services.Location.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDone handles PATCH /v1/admin/locations/:id/done
func (h *AdminHandler) SetDone(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req struct {
		IsDone *bool `json:"is_done"`
	}
	if !bindRequired(c, &req, "is_done", func() bool { return req.IsDone != nil }) {
		return
	}

	loc, err := h.services.Location.SetDone(c.Request.Context(), id, *req.IsDone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// CreateGoldStandard handles POST /v1/admin/gold-standards
func (h *AdminHandler) CreateGoldStandard(c *gin.Context) {
	var input models.AnswerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := h.services.Answer.CreateGoldStandard(c.Request.Context(), currentUser(c).ID, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, answer)
}

// SetGoldStandardStatus handles PATCH /v1/admin/answers/:id/gold_standard_status
func (h *AdminHandler) SetGoldStandardStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req struct {
		Status *int `json:"gold_standard_status"`
	}
	if !bindRequired(c, &req, "gold_standard_status", func() bool { return req.Status != nil }) {
		return
	}

	answer, err := h.services.Answer.SetGoldStandardStatus(c.Request.Context(), id, models.GoldStandardStatus(*req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// DeleteAnswer handles DELETE /v1/admin/answers/:id
func (h *AdminHandler) DeleteAnswer(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.services.Answer.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// bindRequired binds the JSON body and checks that field was present
func bindRequired(c *gin.Context, req interface{}, field string, present func() bool) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if !present() {
		respondError(c, validation.Errors{{Field: field, Message: field + " is required"}})
		return false
	}
	return true
}
