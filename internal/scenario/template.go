package scenario

import (
	"strings"

	"kmsload/internal/kmspath"
	"kmsload/internal/seeds"
)

// KMS endpoint patterns. The braces mark the single placeholder.
const (
	PathConcept   = "/concept/{conceptId}"
	PathPattern   = "/concepts/pattern/{pattern}"
	PathScheme    = "/concepts/concept_scheme/{conceptScheme}"
	PathSchemeCSV = PathScheme + "?format=csv"
	PathFullPath  = "/concept_fullpaths/concept_uuid/{conceptId}"
	PathConcepts  = "/concepts"
	PathRoot      = "/concepts/root"
	PathTreeAll   = "/tree/concept_scheme/all"
)

// Encoding selects how a seed value is escaped before substitution.
type Encoding int

const (
	PlainEncoding Encoding = iota
	PatternEncoding
)

// Encoder escapes placeholder values.
type Encoder struct {
	// DoubleEncodeSlash turns %2F into %252F for pattern segments. Only
	// correct when the gateway in front of KMS decodes exactly once.
	DoubleEncodeSlash bool
}

var DefaultEncoder = Encoder{DoubleEncodeSlash: true}

func (e Encoder) Encode(enc Encoding, value string) string {
	if enc == PatternEncoding && e.DoubleEncodeSlash {
		return kmspath.EncodePatternSegment(value)
	}
	return kmspath.EncodePlain(value)
}

// Template is one row of a scenario's weighting table.
type Template struct {
	Path     string
	Name     string // metrics grouping; defaults to Path
	Weight   int
	Source   seeds.Source
	Encoding Encoding
}

// Request is a fully resolved request, relative to the base path.
type Request struct {
	Name string
	Path string
}

func (t Template) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Path
}

// Render substitutes value, escaped per the template's encoding, for the
// placeholder. Templates without a placeholder render as-is.
func (t Template) Render(value string, enc Encoder) Request {
	path := t.Path
	if i := strings.IndexByte(path, '{'); i >= 0 {
		if j := strings.IndexByte(path[i:], '}'); j >= 0 {
			path = path[:i] + enc.Encode(t.Encoding, value) + path[i+j+1:]
		}
	}
	return Request{Name: t.Label(), Path: path}
}
