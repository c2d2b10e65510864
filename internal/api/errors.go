package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

var badRequest = []error{
	service.ErrInvalidTask,
	service.ErrInvalidStatus,
	service.ErrInvalidPriority,
	service.ErrRecurringInstance,
	service.ErrHierarchyCycle,
	service.ErrInvalidFilter,
	recurrence.ErrInvalidRule,
}

func statusFor(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as JSON. Internal errors are logged and not echoed to the client.
func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
