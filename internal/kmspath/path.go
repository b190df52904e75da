package kmspath

import "strings"

// NormalizeBasePath trims base and returns it with exactly one leading slash
// and no trailing slash. Empty input and "/" both mean no prefix.
func NormalizeBasePath(base string) string {
	base = strings.TrimSpace(base)
	base = strings.TrimRight(base, "/")
	if base == "" {
		return ""
	}
	return "/" + strings.TrimLeft(base, "/")
}

// Join prepends the normalised base path to suffix.
func Join(base, suffix string) string {
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return NormalizeBasePath(base) + suffix
}
