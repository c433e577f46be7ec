package reports

import (
	"context"
	"testing"

	"github.com/tweetor-social/tweetor/internal/testutil"
	"github.com/tweetor-social/tweetor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReports(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := testutil.TestDB(t)
	q := NewQueue(db, nil)

	post := models.Post{AuthorHandle: "alice", Content: "hmm", Visibility: models.VisibilityVisible, Kind: models.PostKindOriginal}
	require.NoError(t, db.Create(&post).Error)
	other := models.Post{AuthorHandle: "alice", Content: "fine", Visibility: models.VisibilityVisible, Kind: models.PostKindOriginal}
	require.NoError(t, db.Create(&other).Error)

	bob := models.UserActor("bob")
	_, err := q.Report(ctx, bob, post.ID, "spam")
	require.NoError(t, err)
	_, err = q.Report(ctx, bob, post.ID, "spam")
	require.NoError(t, err)
	_, err = q.Report(ctx, models.UserActor("carol"), other.ID, " rude ")
	require.NoError(t, err)

	staff := models.StaffActor("mod")
	all, err := q.List(ctx, staff)
	require.NoError(t, err)
	assert.Len(all, 3)

	forPost, err := q.ListForPost(ctx, staff, post.ID)
	require.NoError(t, err)
	require.Len(t, forPost, 2)
	assert.Equal("bob", forPost[0].ReporterHandle)
	assert.Equal("spam", forPost[1].Reason)

	forOther, err := q.ListForPost(ctx, staff, other.ID)
	require.NoError(t, err)
	require.Len(t, forOther, 1)
	assert.Equal("rude", forOther[0].Reason)

	_, err = q.List(ctx, bob)
	assert.ErrorIs(err, models.ErrNotStaff)
	_, err = q.ListForPost(ctx, bob, post.ID)
	assert.ErrorIs(err, models.ErrNotStaff)
}

func TestReportErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	q := NewQueue(testutil.TestDB(t), nil)

	_, err := q.Report(ctx, models.Anonymous(), 1, "spam")
	assert.ErrorIs(err, models.ErrUnauthorized)
	_, err = q.Report(ctx, models.UserActor("bob"), 1, "  ")
	assert.ErrorIs(err, models.ErrValidation)
	_, err = q.Report(ctx, models.UserActor("bob"), 1, "spam")
	assert.ErrorIs(err, models.ErrNotFound)
}
