package enricher

import (
	"net/url"
	"strings"

	"mastoscrape/pkg/archive"
	"mastoscrape/pkg/mastodon"
)

// Classify determines the post type. A status carrying a reblog payload is
// a reblog; a status with an empty body whose URL ends in /activity is a
// favourite marker; everything else is original.
func Classify(s mastodon.Status) archive.PostType {
	switch {
	case s.Reblog != nil:
		return archive.TypeReblog
	case IsFavorite(s):
		return archive.TypeFavorite
	default:
		return archive.TypeOriginal
	}
}

// IsFavorite reports whether s is a favourite marker.
func IsFavorite(s mastodon.Status) bool {
	if s.Content != "" {
		return false
	}
	segments := pathSegments(s.URL)
	return len(segments) > 0 && segments[len(segments)-1] == "activity"
}

// FavoriteSourceID extracts the id of the favourited status from a marker
// URL: the path segment before the trailing "activity".
func FavoriteSourceID(rawURL string) (string, bool) {
	segments := pathSegments(rawURL)
	if len(segments) < 2 {
		return "", false
	}
	id := segments[len(segments)-2]
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return nil
	}
	return strings.Split(strings.Trim(u.Path, "/"), "/")
}
