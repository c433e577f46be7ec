package directmsg

import (
	"context"
	"strings"
	"testing"

	"github.com/tweetor-social/tweetor/internal/testutil"
	"github.com/tweetor-social/tweetor/models"
	"github.com/tweetor-social/tweetor/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type wordModerator []string

func (w wordModerator) Moderate(ctx context.Context, text string) moderation.Verdict {
	for _, word := range w {
		if strings.Contains(text, word) {
			return moderation.Verdict{Decision: moderation.Reject, Categories: []string{word}}
		}
	}
	return moderation.Verdict{Decision: moderation.Allow}
}

func testStore(t *testing.T, config Config) (*Store, *gorm.DB) {
	db := testutil.TestDB(t)
	for _, h := range []string{"alice", "bob", "carol"} {
		require.NoError(t, db.Create(&models.User{Handle: h, DisplayName: h, PasswordHash: []byte("x")}).Error)
	}
	return NewStore(db, wordModerator{"weapon"}, config, nil), db
}

func messageCountIn(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.DirectMessage{}).Count(&n).Error)
	return n
}

func TestConversation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _ := testStore(t, DefaultConfig())

	_, err := s.Submit(ctx, models.UserActor("alice"), "bob", "hi bob")
	require.NoError(t, err)
	_, err = s.Submit(ctx, models.UserActor("bob"), "alice", "hi alice")
	require.NoError(t, err)
	_, err = s.Submit(ctx, models.UserActor("carol"), "alice", "unrelated")
	require.NoError(t, err)

	convo, err := s.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, convo, 2)
	assert.Equal("hi alice", convo[0].Content)
	assert.Equal("hi bob", convo[1].Content)

	same, err := s.ListConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(convo, same)

	peers, err := s.ListEngagedPeers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal([]string{"bob", "carol"}, peers)

	peers, err = s.ListEngagedPeers(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(peers)
}

func TestFlaggedMessageHidden(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t, DefaultConfig())

	before := messageCountIn(t, db)
	id, err := s.Submit(ctx, models.UserActor("alice"), "bob", "want a weapon?")
	require.NoError(t, err)
	assert.NotZero(id)
	assert.Equal(before+1, messageCountIn(t, db))

	convo, err := s.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(convo)

	hidden, err := s.ListHidden(ctx, models.StaffActor("carol"))
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.Equal(id, hidden[0].ID)
	assert.Equal(models.VisibilityHidden, hidden[0].Visibility)
	assert.Equal([]string{"weapon"}, hidden[0].MatchedCategories)

	_, err = s.ListHidden(ctx, models.UserActor("bob"))
	assert.ErrorIs(err, models.ErrUnauthorized)
}

func TestSubmitErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t, DefaultConfig())

	_, err := s.Submit(ctx, models.Anonymous(), "bob", "hi")
	assert.Equal(models.KindUnauthenticated, models.KindOf(err))
	_, err = s.Submit(ctx, models.UserActor("alice"), "ghost", "hi")
	assert.Equal(models.KindNotFound, models.KindOf(err))
	assert.ErrorIs(err, models.ErrNotFound)
	_, err = s.Submit(ctx, models.UserActor("alice"), "bob", strings.Repeat("ü", 1001))
	assert.Equal(models.KindTooLong, models.KindOf(err))
	assert.Equal(int64(0), messageCountIn(t, db))

	_, err = s.Submit(ctx, models.UserActor("alice"), "bob", strings.Repeat("ü", 1000))
	assert.NoError(err)
}

func TestBlockOnMatchMessages(t *testing.T) {
	ctx := context.Background()
	s, db := testStore(t, Config{MatchPolicy: moderation.BlockOnMatch})

	_, err := s.Submit(ctx, models.UserActor("alice"), "bob", "weapon")
	assert.Equal(t, models.KindRejected, models.KindOf(err))
	assert.Equal(t, int64(0), messageCountIn(t, db))
}
