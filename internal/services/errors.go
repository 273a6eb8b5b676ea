package services

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidInput indicates the request failed pre-flight validation.
	ErrInvalidInput = errors.New("generation: invalid input")
	// ErrAuthentication indicates the backend rejected our credentials.
	ErrAuthentication = errors.New("generation: authentication failed")
	// ErrBlocked indicates the backend refused the whole request for policy reasons.
	ErrBlocked = errors.New("generation: request blocked")
	// ErrBackend indicates the backend failed in a way the caller may retry.
	ErrBackend = errors.New("generation: backend failure")

	// ErrMediaNotFound indicates the requested library record does not exist.
	ErrMediaNotFound = errors.New("library: media not found")
)

// userMessage strips transport noise from backend error text so it can be
// surfaced directly on the form. Backends occasionally double-wrap their
// messages with an "Error: " prefix.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	for strings.HasPrefix(msg, "Error: ") {
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "Error: "))
	}
	return msg
}
