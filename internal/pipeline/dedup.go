package pipeline

import (
	"net/url"
	"strings"
	"sync"
)

// Deduplicator remembers record keys within one author's listing.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size int
}

// NewDeduplicator creates a Deduplicator sized for a typical publication list.
func NewDeduplicator(size int) *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{}, size), size: size}
}

// MarkSeen records key and reports whether it was new.
func (d *Deduplicator) MarkSeen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Count returns the number of distinct keys.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Reset forgets every key.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.size)
}

// volatileParams change between visits to the same detail page without changing the work.
var volatileParams = []string{"hl", "oi", "authuser", "gl"}

// CanonicalizeURL reduces a detail URL to the form two rows of the same work share:
// lowercase scheme and host, no fragment, default port or trailing slash, no volatile
// query parameters, and query keys in sorted order.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	switch {
	case u.Scheme == "http" && u.Port() == "80", u.Scheme == "https" && u.Port() == "443":
		u.Host = u.Hostname()
	}

	if u.RawQuery != "" {
		q := u.Query()
		for _, p := range volatileParams {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}

	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
