package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/audience-server/internal/model"
)

func handleError(err error, notFoundMsg string) (int, string) {
	var validationErr *model.ValidationError
	var integrityErr *model.DataIntegrityError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &integrityErr):
		return http.StatusConflict, integrityErr.Error()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, notFoundMsg
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable, retry later"
	case errors.Is(err, model.ErrStorageDisabled):
		return http.StatusServiceUnavailable, model.ErrStorageDisabled.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *gin.Context, err error, notFoundMsg string) {
	status, msg := handleError(err, notFoundMsg)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
