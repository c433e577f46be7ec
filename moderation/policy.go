package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/tweetor-social/tweetor/models"
)

// How the pipeline resolves a classifier failure.
type FailPolicy string

const (
	// content is allowed through untagged
	FailOpen FailPolicy = "fail-open"
	// content is treated as rejected
	FailClosed FailPolicy = "fail-closed"
)

func ParseFailPolicy(raw string) (FailPolicy, error) {
	switch FailPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case FailOpen, "":
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown moderation fail policy: %q", raw)
	}
}

// Bounded retry for transient classifier failures. Zero Attempts means a
// single call with no retry.
type RetryConfig struct {
	Attempts int
	WaitMin  time.Duration
	WaitMax  time.Duration
}

// What a store does with a Reject verdict.
type MatchPolicy string

const (
	// Reject verdicts block storage entirely (posts)
	BlockOnMatch MatchPolicy = "block-on-match"
	// Reject verdicts are stored hidden, for staff audit (direct messages)
	HideOnMatch MatchPolicy = "hide-on-match"
)

type Outcome int

const (
	OutcomeStoreVisible Outcome = iota
	OutcomeStoreHidden
	OutcomeBlock
)

func (o Outcome) Visibility() models.Visibility {
	if o == OutcomeStoreVisible {
		return models.VisibilityVisible
	}
	return models.VisibilityHidden
}

func (mp MatchPolicy) Outcome(v Verdict) Outcome {
	if v.Decision == Allow {
		return OutcomeStoreVisible
	}
	if mp == HideOnMatch {
		return OutcomeStoreHidden
	}
	return OutcomeBlock
}
