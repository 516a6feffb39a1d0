package app

import (
	"errors"
	"fmt"
	"net/http"

	"moodpad/internal/auth"
	"moodpad/internal/document"
	"moodpad/internal/export"
	"moodpad/internal/gitrepo"
	"moodpad/internal/rewrite"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var mutErr *document.MutationError
	switch {
	case errors.Is(err, gitrepo.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", "No versions for document", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrWrongRoom):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, rewrite.ErrEmptyText), errors.Is(err, rewrite.ErrInvalidTone):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, rewrite.ErrNoAPIKey):
		return http.StatusInternalServerError, "REWRITE_UNAVAILABLE", "Rewrite service is not configured", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrContentUnavailable):
		return http.StatusNotFound, "NOT_FOUND", "Document version not found", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.As(err, &mutErr):
		return http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil
	}
	var rwErr *rewrite.Error
	if errors.As(err, &rwErr) {
		if rwErr.Kind == rewrite.KindTimeout {
			return http.StatusGatewayTimeout, "REWRITE_TIMEOUT", "Rewrite timed out", nil
		}
		return http.StatusBadGateway, "REWRITE_FAILED", "Rewrite failed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
