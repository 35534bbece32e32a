package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lingotutor/ai"
	"lingotutor/middleware"
	"lingotutor/services"
)

func statusFor(err error) int {
	var providerErr *ai.ProviderError
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrNoPlay):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrNoThread),
		errors.Is(err, ai.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrSendInFlight),
		errors.Is(err, services.ErrAnswered),
		errors.Is(err, services.ErrNotAnswered),
		errors.Is(err, services.ErrQuizComplete),
		errors.Is(err, services.ErrNoQuestions),
		errors.Is(err, services.ErrBannerInFlight):
		return http.StatusConflict
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrGeneration),
		errors.Is(err, ai.ErrMalformedResponse),
		errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func currentSession(c *gin.Context) (*services.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, false
	}
	return sess, true
}

func paramID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}
