package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error returned by the stores matches exactly one of
// these with errors.Is.
var (
	// user-correctable input problem, no state change
	ErrValidation = errors.New("validation failed")
	// muted, unauthenticated, or non-staff caller attempting a staff action
	ErrUnauthorized = errors.New("not authorized")
	// content classifier matched one or more categories
	ErrModerationRejected = errors.New("rejected by moderation")
	// classifier unreachable or malformed. resolved by the fail policy, not surfaced to users
	ErrExternalService = errors.New("external service failure")
	// referenced post or user absent
	ErrNotFound = errors.New("not found")
)

var (
	ErrNotStaff         = fmt.Errorf("%w: staff only", ErrUnauthorized)
	ErrNotAuthenticated = fmt.Errorf("%w: not logged in", ErrUnauthorized)
)

type SubmissionKind string

const (
	KindUnauthenticated SubmissionKind = "Unauthenticated"
	KindMuted           SubmissionKind = "Muted"
	KindBlankContent    SubmissionKind = "BlankContent"
	KindTooLong         SubmissionKind = "TooLong"
	KindBadMediaHost    SubmissionKind = "BadMediaHost"
	KindRejected        SubmissionKind = "Rejected"
	KindNotFound        SubmissionKind = "NotFound"
)

// Returned by post and message submission. Only the first failing
// constraint is reported.
type SubmissionError struct {
	Kind SubmissionKind
	// set for KindRejected
	Categories []string
}

func (e *SubmissionError) Error() string {
	switch e.Kind {
	case KindUnauthenticated:
		return "submission failed: not logged in"
	case KindMuted:
		return "submission failed: author is muted"
	case KindBlankContent:
		return "submission failed: content was blank"
	case KindTooLong:
		return "submission failed: content was too long"
	case KindBadMediaHost:
		return "submission failed: media link host not allowed"
	case KindRejected:
		if len(e.Categories) > 0 {
			return "submission failed: rejected by moderation (" + strings.Join(e.Categories, ",") + ")"
		}
		return "submission failed: rejected by moderation"
	case KindNotFound:
		return "submission failed: referenced post not found"
	default:
		return "submission failed: " + string(e.Kind)
	}
}

func (e *SubmissionError) Unwrap() error {
	switch e.Kind {
	case KindUnauthenticated, KindMuted:
		return ErrUnauthorized
	case KindBlankContent, KindTooLong, KindBadMediaHost:
		return ErrValidation
	case KindRejected:
		return ErrModerationRejected
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func Submission(kind SubmissionKind) *SubmissionError {
	return &SubmissionError{Kind: kind}
}

// Extracts the submission kind from an error chain, or "" if there is none.
func KindOf(err error) SubmissionKind {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func (a Actor) RequireAuthenticated() error {
	if !a.Authenticated || a.Handle == "" {
		return ErrNotAuthenticated
	}
	return nil
}

func (a Actor) RequireStaff() error {
	if err := a.RequireAuthenticated(); err != nil {
		return err
	}
	if !a.Staff {
		return ErrNotStaff
	}
	return nil
}
