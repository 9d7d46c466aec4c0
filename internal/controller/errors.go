package controller

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAuthenticated is returned by any fetch made before a successful
// Authenticate.
var ErrNotAuthenticated = errors.New("not authenticated")

// ConnectionError means the controller could not be reached.
type ConnectionError struct {
	Controller string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to controller %q: %v", e.Controller, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError means the controller was reached but rejected every
// API version that was tried.
type AuthenticationError struct {
	Controller string
	Versions   []string
	Err        error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication to controller %q failed (tried %s): %v",
		e.Controller, strings.Join(e.Versions, ", "), e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ResourceFetchError reports a failed read of one resource.
type ResourceFetchError struct {
	Resource string
	Site     string
	Err      error
}

func (e *ResourceFetchError) Error() string {
	if e.Site == "" {
		return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s for site %q: %v", e.Resource, e.Site, e.Err)
}

func (e *ResourceFetchError) Unwrap() error { return e.Err }

// StatusError is a non-2xx reply or an error envelope from the controller.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// transportError marks failures that never produced an HTTP response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

// IsTransport reports whether err is a failure to reach the controller at
// all, as opposed to a rejected or malformed reply.
func IsTransport(err error) bool {
	var te *transportError
	var ce *ConnectionError
	return errors.As(err, &te) || errors.As(err, &ce)
}
