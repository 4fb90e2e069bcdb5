package scraper

import (
	"strings"

	errs "mastoscrape/pkg/errors"
)

// Handle identifies a profile on its home server.
type Handle struct {
	Username string
	Host     string
}

// String returns username@host.
func (h Handle) String() string {
	return h.Username + "@" + h.Host
}

// ParseHandle accepts "user", "user@host" and "@user@host". A bare
// username resolves on defaultHost.
func ParseHandle(raw, defaultHost string) (Handle, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "@")

	parts := strings.Split(s, "@")
	var h Handle
	switch len(parts) {
	case 1:
		h = Handle{Username: parts[0], Host: defaultHost}
	case 2:
		h = Handle{Username: parts[0], Host: parts[1]}
	default:
		return Handle{}, errs.New(errs.ErrorTypeInvalidInput, 0, "malformed handle %q: expected username@instance", raw)
	}

	h.Host = strings.ToLower(strings.TrimSpace(h.Host))
	h.Username = strings.TrimSpace(h.Username)
	if h.Username == "" {
		return Handle{}, errs.New(errs.ErrorTypeInvalidInput, 0, "malformed handle %q: empty username", raw)
	}
	if h.Host == "" {
		return Handle{}, errs.New(errs.ErrorTypeInvalidInput, 0, "malformed handle %q: empty instance", raw)
	}
	if strings.ContainsAny(h.Host, "/ ") || strings.ContainsAny(h.Username, "/ ") {
		return Handle{}, errs.New(errs.ErrorTypeInvalidInput, 0, "malformed handle %q", raw)
	}
	return h, nil
}
