package his

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind partitions HIS call failures into the buckets workflows and
// audit records care about. Transport problems are retryable; everything the
// backend said on purpose is not.
type FailureKind string

const (
	FailureNetwork      FailureKind = "network"
	FailureTimeout      FailureKind = "timeout"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureForbidden    FailureKind = "forbidden"
	FailureNotFound     FailureKind = "not_found"
	FailureConflict     FailureKind = "conflict"
	FailureServer       FailureKind = "server"
	FailureMalformed    FailureKind = "malformed_response"
)

// APIError is the error type for every failed HIS call.
type APIError struct {
	Kind     FailureKind
	Status   int
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("his %s [%d] %s: %s", e.Endpoint, e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("his %s %s: %s", e.Endpoint, e.Kind, e.Message)
}

// Retryable reports whether the failure is worth another attempt. Only
// transport problems and backend 5xx qualify.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case FailureNetwork, FailureTimeout, FailureServer:
		return true
	}
	return false
}

// KindOf extracts the failure kind from any error returned by this package.
// Unknown errors are treated as network failures.
func KindOf(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureNetwork
}

// kindForStatus maps a backend HTTP status to a failure kind.
func kindForStatus(status int) FailureKind {
	switch {
	case status == 401:
		return FailureUnauthorized
	case status == 403:
		return FailureForbidden
	case status == 404:
		return FailureNotFound
	case status == 409:
		return FailureConflict
	case status >= 500:
		return FailureServer
	default:
		return FailureMalformed
	}
}

// transportError classifies an error from the HTTP client itself.
func transportError(endpoint string, err error) *APIError {
	kind := FailureNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FailureTimeout
	}
	return &APIError{Kind: kind, Endpoint: endpoint, Message: err.Error()}
}
