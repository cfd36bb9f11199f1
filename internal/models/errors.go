package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is a bad or missing provider credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrService is a provider-side failure during embedding or completion.
	ErrService = errors.New("service error")
	// ErrEmptyInput is a user-correctable condition: no document, an empty document or an empty question.
	ErrEmptyInput = errors.New("empty input")
)

// ProviderError carries the provider's message and unwraps to its kind and its cause.
type ProviderError struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// EmptyInput wraps ErrEmptyInput with a user-facing reason.
func EmptyInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrEmptyInput, reason)
}
