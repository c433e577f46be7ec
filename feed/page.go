package feed

import (
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Page struct {
	Skip  int
	Limit int
}

func DefaultPage() Page {
	return Page{Skip: 0, Limit: DefaultLimit}
}

// Parses raw skip/limit query values. If either one is missing, malformed, or
// negative, both fall back to the defaults. Limit is capped at MaxLimit, and
// a zero limit reads as DefaultLimit.
func ParsePage(skipRaw, limitRaw string) Page {
	skip, err := strconv.Atoi(skipRaw)
	if err != nil || skip < 0 {
		return DefaultPage()
	}
	limit, err := strconv.Atoi(limitRaw)
	if err != nil || limit < 0 {
		return DefaultPage()
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Skip: skip, Limit: limit}
}
