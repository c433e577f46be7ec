package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionErrorClasses(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		kind  SubmissionKind
		class error
	}{
		{KindUnauthenticated, ErrUnauthorized},
		{KindMuted, ErrUnauthorized},
		{KindBlankContent, ErrValidation},
		{KindTooLong, ErrValidation},
		{KindBadMediaHost, ErrValidation},
		{KindRejected, ErrModerationRejected},
		{KindNotFound, ErrNotFound},
	}

	for _, row := range table {
		err := fmt.Errorf("wrapped: %w", Submission(row.kind))
		assert.True(errors.Is(err, row.class), row.kind)
		assert.Equal(row.kind, KindOf(err))
	}
	assert.Equal(SubmissionKind(""), KindOf(errors.New("other")))
}

func TestRejectedMessageCategories(t *testing.T) {
	err := &SubmissionError{Kind: KindRejected, Categories: []string{"drug", "weapon"}}
	assert.Contains(t, err.Error(), "drug,weapon")
}

func TestActorChecks(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(Anonymous().RequireAuthenticated(), ErrUnauthorized)
	assert.NoError(UserActor("alice").RequireAuthenticated())
	assert.ErrorIs(UserActor("alice").RequireStaff(), ErrNotStaff)
	assert.NoError(StaffActor("admin").RequireStaff())
	assert.ErrorIs(Actor{Staff: true}.RequireStaff(), ErrNotAuthenticated)
}
