// Package oracle adapts the external pairwise face comparison service.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the comparison service has no credentials.
	ErrNotConfigured = errors.New("comparison service not configured")
	// ErrNoConfidence means the service answered without a usable confidence value.
	ErrNoConfidence = errors.New("comparison response has no confidence")
	// ErrTransport means the service could not be reached or answered with an unreadable body.
	ErrTransport = errors.New("comparison service unreachable")
)

// ServiceError is an error reported by the comparison service itself.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("comparison service error (status %d): %s", e.Status, e.Message)
}

// Comparator scores how likely two images show the same person, 0 to 100.
type Comparator interface {
	Compare(ctx context.Context, probe, target []byte) (float64, error)
}

// Checker is implemented by comparators that can tell up front whether they are usable.
type Checker interface {
	Configured() bool
}

// Ready reports whether c can be called. Comparators without a Checker are assumed ready.
func Ready(c Comparator) bool {
	if c == nil {
		return false
	}
	if checker, ok := c.(Checker); ok {
		return checker.Configured()
	}
	return true
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(ctx context.Context, probe, target []byte) (float64, error)

// Compare calls f.
func (f ComparatorFunc) Compare(ctx context.Context, probe, target []byte) (float64, error) {
	return f(ctx, probe, target)
}
