package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cvrd/client/internal/api"
	"cvrd/client/internal/auth"
	"cvrd/client/internal/backup"
	"cvrd/client/internal/mutation"
	"cvrd/client/internal/prefs"
	"cvrd/client/internal/session"
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

var errBackupUnavailable = domainError(http.StatusServiceUnavailable, "BACKUP_UNAVAILABLE", "Preference backup is not configured", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var mutErr *mutation.Error
	if errors.As(err, &mutErr) {
		status = http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			status = apiErr.Status
		}
		return status, "MUTATION_ROLLED_BACK", mutErr.Err.Error(), map[string]any{"key": mutErr.Key}
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized {
			return http.StatusUnauthorized, "UNAUTHORIZED", apiErr.Error(), nil
		}
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status, "BACKEND_REJECTED", apiErr.Error(), nil
		}
		return http.StatusBadGateway, "BACKEND_ERROR", apiErr.Error(), nil
	}

	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, prefs.ErrInvalidSectionOrder),
		errors.Is(err, prefs.ErrInvalidAppearance),
		errors.Is(err, backup.ErrDeviceRequired):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, backup.ErrNoBackup):
		return http.StatusNotFound, "NOT_FOUND", "No backup found for this device", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Backend did not respond in time", nil
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "BACKEND_UNAVAILABLE", "Backend unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
