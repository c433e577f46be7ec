package moderation

import (
	"context"
	"errors"
)

const StatusSuccess = "success"

// Default category set sent with every classification request.
var DefaultCategories = []string{"drug", "medical", "extremism", "weapon"}

type Request struct {
	Text       string
	Language   string
	Categories []string
}

// Any Status other than StatusSuccess is treated as a classifier failure.
type Response struct {
	Status  string
	Matches []string
}

// A black-box text classifier. Implementations may block on network I/O and
// must honor context cancellation.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Response, error)
}

type ClassifierFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Marks a classifier failure as not worth retrying (eg, rejected credentials
// or a malformed response body).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
