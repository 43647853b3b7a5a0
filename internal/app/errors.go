package app

import (
	"fmt"
	"net/http"
)

// DomainError carries the HTTP status and stable code a failure maps to.
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

var (
	errUnauthorized       = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errInvalidSignature   = domainError(http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature", nil)
	errWebhookUnavailable = domainError(http.StatusServiceUnavailable, "NOT_CONFIGURED", "Webhook secret not configured", nil)
	errSearchDisabled     = domainError(http.StatusServiceUnavailable, "SEARCH_DISABLED", "Search engine not configured", nil)
)

func invalidPayload(err error) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid webhook payload", err.Error())
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
