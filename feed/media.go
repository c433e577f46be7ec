package feed

import (
	"strings"

	"github.com/PuerkitoBio/purell"
)

const mediaNormalizeFlags = purell.FlagsSafe | purell.FlagRemoveDotSegments | purell.FlagRemoveDuplicateSlashes

func normalizeMediaLink(raw string) string {
	clean, err := purell.NormalizeURLString(raw, mediaNormalizeFlags)
	if err != nil {
		return ""
	}
	return clean
}

// a link that fails to parse is never allowed
func (s *Store) allowedMedia(link string) bool {
	norm := normalizeMediaLink(link)
	if norm == "" {
		return false
	}
	for _, p := range s.config.AllowedMediaPrefixes {
		if strings.HasPrefix(norm, p) {
			return true
		}
	}
	return false
}
