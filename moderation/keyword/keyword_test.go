package keyword

import (
	"context"
	"testing"

	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/setstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		out  []string
	}{
		{text: "", out: []string{}},
		{text: "Hello, โลก!", out: []string{"hello", "โลก"}},
		{text: "Gdańsk", out: []string{"gdansk"}},
		{text: "  BUY-cheap   pills!!", out: []string{"buy", "cheap", "pills"}},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, TokenizeText(fix.text))
	}
}

func TestKeywordClassifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sets := setstore.NewMemSetStore()
	sets.Add("drug", "cocaine", "pill")
	sets.Add("weapon", "rifle")
	cl := NewClassifier(sets)

	resp, err := cl.Classify(ctx, moderation.Request{
		Text:       "Selling PILLS and a rifle",
		Categories: moderation.DefaultCategories,
	})
	require.NoError(t, err)
	assert.Equal(moderation.StatusSuccess, resp.Status)
	assert.Equal([]string{"drug", "weapon"}, resp.Matches)

	resp, err = cl.Classify(ctx, moderation.Request{
		Text:       "a perfectly nice day",
		Categories: moderation.DefaultCategories,
	})
	require.NoError(t, err)
	assert.Empty(resp.Matches)

	// only requested categories are checked
	resp, err = cl.Classify(ctx, moderation.Request{
		Text:       "rifle",
		Categories: []string{"drug"},
	})
	require.NoError(t, err)
	assert.Empty(resp.Matches)
}

func TestKeywordClassifierPipeline(t *testing.T) {
	sets := setstore.NewMemSetStore()
	sets.Add("extremism", "propaganda")
	v := moderation.NewPipeline(NewClassifier(sets), moderation.Config{}).Moderate(context.Background(), "spreading Propaganda")
	assert.Equal(t, moderation.Reject, v.Decision)
	assert.Equal(t, []string{"extremism"}, v.Categories)
}
