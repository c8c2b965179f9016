package api

import (
	"errors"
	"net/http"

	"github.com/crowd-labeling-api/internal/auth"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/gin-gonic/gin"
)

// respondError writes the JSON error response matching err.
// Internal errors are not echoed to the client; they are attached to the
// request so the logging middleware can report them.
func respondError(c *gin.Context, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verrs})
	case errors.Is(err, service.ErrNoGoldCheck),
		errors.Is(err, service.ErrNoGoldStandards),
		errors.Is(err, service.ErrInsufficientGoldStandards),
		errors.Is(err, service.ErrInsufficientLocations):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateGoldStandard):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
