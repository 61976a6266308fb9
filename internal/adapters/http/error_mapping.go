package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var rejected *domain.BatchRejectedError
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity
	}

	switch {
	case domain.IsKind(err, domain.ErrEmptyFile),
		domain.IsKind(err, domain.ErrInvalidURL),
		domain.IsKind(err, domain.ErrEmptyBatch),
		domain.IsKind(err, domain.ErrMissingRange),
		domain.IsKind(err, domain.ErrNoExtractedData),
		domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrOperationInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
