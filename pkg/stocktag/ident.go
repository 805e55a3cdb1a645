package stocktag

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// IdentifierPrefix is the site path under which photos are published.
const IdentifierPrefix = "photo/"

const upperhex = "0123456789ABCDEF"

// Identifier returns the percent-encoded resource identifier for a path relative to the photo root.
func Identifier(relPath string) string {
	return escape(IdentifierPrefix + filepath.ToSlash(relPath))
}

// ImageURL returns the public URL the remote service fetches an image from.
func ImageURL(siteRoot string, relPath string) string {
	return siteRoot + Identifier(relPath)
}

// StripSitePrefix removes one leading siteRoot from u. u is returned unchanged if the prefix is absent.
func StripSitePrefix(u string, siteRoot string) string {
	return strings.TrimPrefix(u, siteRoot)
}

// RelPath converts an identifier back into a slash-separated relative path.
func RelPath(id string) (string, error) {
	if !strings.HasPrefix(id, IdentifierPrefix) {
		return "", fmt.Errorf("%q does not start with %q", id, IdentifierPrefix)
	}
	p, err := url.PathUnescape(strings.TrimPrefix(id, IdentifierPrefix))
	if err != nil {
		return "", fmt.Errorf("unescape: %w", err)
	}
	return p, nil
}

// escape percent-encodes every byte outside of [A-Za-z0-9_.~/-].
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '~', '/':
		return true
	}
	return false
}
