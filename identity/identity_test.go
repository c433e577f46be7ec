package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tweetor-social/tweetor/internal/testutil"
	"github.com/tweetor-social/tweetor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testStore(t *testing.T) *Store {
	s := NewStore(testutil.TestDB(t), nil)
	s.BcryptCost = bcrypt.MinCost
	return s
}

func signup(name string) SignupInput {
	return SignupInput{DisplayName: name, Password: "hunter2", PasswordConfirmation: "hunter2"}
}

func TestHandleDisambiguation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	first, err := s.CreateUser(ctx, signup("Alice"))
	require.NoError(t, err)
	assert.Equal("Alice", first.Handle)

	second, err := s.CreateUser(ctx, signup("Alice"))
	require.NoError(t, err)
	assert.Equal("Alice1", second.Handle)

	third, err := s.CreateUser(ctx, signup("  Alice "))
	require.NoError(t, err)
	assert.Equal("Alice2", third.Handle)

	// both remain independently addressable
	u, err := s.LookupHandle(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(first.ID, u.ID)
	u, err = s.LookupHandle(ctx, "Alice1")
	require.NoError(t, err)
	assert.Equal(second.ID, u.ID)
	assert.Equal("Alice", u.DisplayName)
}

func TestHandleDisambiguationSkipsTaken(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	_, err := s.CreateUser(ctx, signup("Bob1"))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, signup("Bob"))
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, signup("Bob"))
	require.NoError(t, err)
	assert.Equal(t, "Bob2", u.Handle)
}

func TestConcurrentSignupUniqueHandles(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	handles := map[string]bool{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.CreateUser(ctx, signup("Carol"))
			if assert.NoError(t, err) {
				mu.Lock()
				handles[u.Handle] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, handles, 4)
	for i, h := range []string{"Carol", "Carol1", "Carol2", "Carol3"} {
		assert.True(t, handles[h], fmt.Sprintf("missing handle %d: %s", i, h))
	}
}

func TestSignupValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, err := s.CreateUser(ctx, signup("   "))
	assert.ErrorIs(err, ErrInvalidDisplayName)
	assert.ErrorIs(err, models.ErrValidation)

	_, err = s.CreateUser(ctx, signup("a|b"))
	assert.ErrorIs(err, ErrInvalidDisplayName)

	_, err = s.CreateUser(ctx, SignupInput{DisplayName: "dan", Password: "one", PasswordConfirmation: "two"})
	assert.ErrorIs(err, ErrPasswordMismatch)

	_, err = s.CreateUser(ctx, SignupInput{DisplayName: "dan"})
	assert.ErrorIs(err, ErrInvalidPassword)

	ok, err := s.Exists(ctx, "dan")
	assert.NoError(err)
	assert.False(ok)
}

func TestAuthenticate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, err := s.CreateUser(ctx, signup("erin"))
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, "erin", "hunter2")
	require.NoError(t, err)
	assert.Equal("erin", u.Handle)
	assert.NotEqual([]byte("hunter2"), u.PasswordHash)

	_, err = s.Authenticate(ctx, "erin", "wrong")
	assert.ErrorIs(err, ErrBadCredentials)
	_, err = s.Authenticate(ctx, "nobody", "hunter2")
	assert.ErrorIs(err, ErrBadCredentials)

	actor := models.UserActor("erin")
	assert.ErrorIs(s.ChangePassword(ctx, actor, "wrong", "newpass"), ErrBadCredentials)
	assert.NoError(s.ChangePassword(ctx, actor, "hunter2", "newpass"))
	_, err = s.Authenticate(ctx, "erin", "newpass")
	assert.NoError(err)
	assert.ErrorIs(s.ChangePassword(ctx, models.Anonymous(), "newpass", "x"), models.ErrUnauthorized)
}

func TestStaffAndDelete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, err := s.CreateUser(ctx, signup("admin"))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, signup("frank"))
	require.NoError(t, err)

	require.NoError(t, s.EnsureStaff(ctx, []string{"admin", "ghost"}))
	actor, err := s.ActorFor(ctx, "admin")
	require.NoError(t, err)
	assert.True(actor.Staff)
	assert.True(actor.Authenticated)

	frank, err := s.ActorFor(ctx, "frank")
	require.NoError(t, err)
	assert.False(frank.Staff)

	assert.ErrorIs(s.DeleteUser(ctx, frank, "admin"), models.ErrNotStaff)
	assert.NoError(s.DeleteUser(ctx, actor, "frank"))
	assert.ErrorIs(s.DeleteUser(ctx, actor, "frank"), ErrHandleNotFound)
	_, err = s.LookupHandle(ctx, "frank")
	assert.ErrorIs(err, models.ErrNotFound)
}
