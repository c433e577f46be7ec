package setstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSetStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemSetStore()
	ok, err := s.InSet(ctx, "missing", "val")
	assert.NoError(err)
	assert.False(ok)

	s.Add("weapon", "rifle", "pistol")
	ok, err = s.InSet(ctx, "weapon", "rifle")
	assert.NoError(err)
	assert.True(ok)

	ok, err = s.InSet(ctx, "weapon", "shotgun")
	assert.NoError(err)
	assert.False(ok)
	assert.Equal([]string{"weapon"}, s.Names())
}

func TestMemSetStoreLoadFile(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"drug": ["cocaine"], "medical": ["oxycodone", "fentanyl"]}`), 0644))

	s := NewMemSetStore()
	s.Add("drug", "stale")
	require.NoError(t, s.LoadFromFileJSON(p))

	ok, _ := s.InSet(ctx, "drug", "stale")
	assert.False(ok)
	ok, _ = s.InSet(ctx, "medical", "fentanyl")
	assert.True(ok)
	assert.Equal([]string{"drug", "medical"}, s.Names())

	assert.Error(s.LoadJSON([]byte("not json")))
	assert.Error(s.LoadFromFileJSON(filepath.Join(t.TempDir(), "nope.json")))
}
