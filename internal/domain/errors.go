package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups of unknown crawl/chat/page ids and scoped
// searches that return nothing. Never retried.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized marks a rejected widget API key.
var ErrUnauthorized = errors.New("unauthorized")

// ErrDuplicatePage reports an enqueue for a (crawl, URL) pair already
// present in the frontier. Callers treat it as an idempotent no-op.
var ErrDuplicatePage = errors.New("pending page already queued")

// UpstreamError wraps a transient collaborator failure that survived
// the local retry budget.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream builds an UpstreamError for the named collaborator.
func Upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}
