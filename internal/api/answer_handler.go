package api

import (
	"net/http"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AnswerHandler accepts answer batches
type AnswerHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAnswerHandler creates a new AnswerHandler
func NewAnswerHandler(services *service.Services, log zerolog.Logger) *AnswerHandler {
	return &AnswerHandler{
		services: services,
		log:      log.With().Str("handler", "answer").Logger(),
	}
}

// Submit handles POST /v1/answers
func (h *AnswerHandler) Submit(c *gin.Context) {
	var req struct {
		Data []*models.AnswerInput `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	passed, err := h.services.Answer.Submit(c.Request.Context(), currentUser(c).ID, req.Data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"passed": passed})
}
