package domain

import (
	"errors"
	"fmt"
)

// Failure sentinels. Every error returned by a component wraps exactly one.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrLocationNotFound = errors.New("location not found")
	ErrProvider         = errors.New("provider error")
)

// FailureKind is the tag a caller branches on.
type FailureKind string

const (
	KindNone             FailureKind = ""
	KindInvalidInput     FailureKind = "invalid_input"
	KindLocationNotFound FailureKind = "location_not_found"
	KindProviderError    FailureKind = "provider_error"
)

// KindOf reports the failure tag carried by err. Errors that wrap none of the
// sentinels are reported as provider errors so they are never dropped.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrLocationNotFound):
		return KindLocationNotFound
	default:
		return KindProviderError
	}
}

// NotFoundError describes a directory lookup with no admissible match.
type NotFoundError struct {
	Name       string
	Region     string
	PostalCode string
}

func (e *NotFoundError) Error() string {
	if e.PostalCode != "" {
		return fmt.Sprintf("postal code %s not found", e.PostalCode)
	}
	return fmt.Sprintf("place %q not found in region %q", e.Name, e.Region)
}

// Is lets errors.Is(err, ErrLocationNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrLocationNotFound
}

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func providerErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProvider, fmt.Sprintf(format, args...))
}

// ProviderError tags err as a provider failure unless it already carries a tag.
func ProviderError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrLocationNotFound) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, msg, err)
}
