package analytics

import (
	"regexp"
	"strings"
)

var (
	repeatedSlashes  = regexp.MustCompile(`/{2,}`)
	extensionPattern = regexp.MustCompile(`\.[A-Za-z0-9]{2,}$`)
)

// NormalizePath returns the canonical grouping key for a page path: a leading
// slash, no repeated slashes, and a trailing slash unless the path ends in a
// file extension. Apply it on both writes and reads.
func NormalizePath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = repeatedSlashes.ReplaceAllString(p, "/")
	if !strings.HasSuffix(p, "/") && !extensionPattern.MatchString(p) {
		p += "/"
	}
	return p
}
