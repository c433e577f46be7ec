// Local content classifier which matches tokens against per-category keyword
// sets. Used for development and offline operation in place of a hosted
// classifier.
package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/setstore"
)

// Checks each requested category against a set of the same name.
type Classifier struct {
	Sets setstore.SetStore
}

var _ moderation.Classifier = (*Classifier)(nil)

func NewClassifier(sets setstore.SetStore) *Classifier {
	return &Classifier{Sets: sets}
}

func (c *Classifier) Classify(ctx context.Context, req moderation.Request) (*moderation.Response, error) {
	tokens := TokenizeText(req.Text)
	var matches []string
	for _, cat := range req.Categories {
		hit, err := c.matchCategory(ctx, cat, tokens)
		if err != nil {
			return nil, err
		}
		if hit {
			matches = append(matches, cat)
		}
	}
	return &moderation.Response{
		Status:  moderation.StatusSuccess,
		Matches: matches,
	}, nil
}

func (c *Classifier) matchCategory(ctx context.Context, cat string, tokens []string) (bool, error) {
	for _, tok := range tokens {
		for _, form := range []string{tok, strings.TrimSuffix(tok, "s")} {
			if form == "" {
				continue
			}
			ok, err := c.Sets.InSet(ctx, cat, form)
			if err != nil {
				return false, fmt.Errorf("checking keyword set %s: %w", cat, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}
