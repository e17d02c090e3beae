package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"lifeblocks/api/internal/auth"
	"lifeblocks/api/internal/authpw"
	"lifeblocks/api/internal/billing"
	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/export"
	"lifeblocks/api/internal/media"
	"lifeblocks/api/internal/mobileorder"
	"lifeblocks/api/internal/plans"
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
	var validation *blocks.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), map[string]any{"field": validation.Field}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, blocks.ErrUnknownBlock),
		errors.Is(err, mobileorder.ErrUnknownBlock):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, blocks.ErrDuplicateBlock):
		return http.StatusConflict, "DUPLICATE_BLOCK", "Block id already exists on this board", nil
	case errors.Is(err, blocks.ErrUnknownType),
		errors.Is(err, blocks.ErrUnknownItem),
		errors.Is(err, blocks.ErrNotCheckable),
		errors.Is(err, blocks.ErrIndexOutOfRange),
		errors.Is(err, blocks.ErrInvalidDocument),
		errors.Is(err, blocks.ErrInvalidPatch),
		errors.Is(err, blocks.ErrImmutableField),
		errors.Is(err, billing.ErrUnknownPrice),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, plans.ErrStorageLimit):
		return http.StatusForbidden, "PLAN_LIMIT", "Storage limit reached for your plan", map[string]any{"limit": "storage"}
	case errors.Is(err, plans.ErrBoardLimit):
		return http.StatusForbidden, "PLAN_LIMIT", "Board limit reached for your plan", map[string]any{"limit": "boards"}
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Only image uploads are accepted", nil
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error(), map[string]any{"maxBytes": media.MaxUploadBytes}
	case errors.Is(err, media.ErrForeignObject):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid webhook signature", nil
	case errors.Is(err, billing.ErrNotConfigured),
		errors.Is(err, billing.ErrUnavailable):
		return http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing is unavailable", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
