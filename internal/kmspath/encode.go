package kmspath

import (
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// unreserved reports whether c can appear in a path segment without escaping.
// Everything else, '/' included, is percent-encoded.
func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// EncodePlain percent-encodes every byte of raw outside the unreserved set.
// It is used for scheme names and concept ids, which never carry a slash.
func EncodePlain(raw string) string {
	n := 0
	for i := 0; i < len(raw); i++ {
		if !unreserved(raw[i]) {
			n++
		}
	}
	if n == 0 {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw) + 2*n)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
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

// EncodePatternSegment encodes a search pattern so that it survives a gateway
// that decodes path parameters once before route matching. Slashes end up as
// %252F on the wire, %2F after the gateway, and '/' once the service decodes.
func EncodePatternSegment(raw string) string {
	return strings.ReplaceAll(EncodePlain(raw), "%2F", "%252F")
}

// DecodeOnce performs a single percent-decoding pass, the way the gateway
// treats path parameters.
func DecodeOnce(s string) (string, error) {
	return url.PathUnescape(s)
}
