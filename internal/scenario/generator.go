package scenario

import (
	"sort"
	"sync/atomic"

	"kmsload/internal/seeds"
)

// Feed hands out requests to actors. Next returns false when nothing can be
// sent this iteration; Exhaustible tells the runner whether false means the
// run is over (drained queue) or just a skipped iteration (empty seed list).
type Feed interface {
	Next(rng Intner) (Request, bool)
	Exhaustible() bool
}

// Generator samples templates by weight and seeds with replacement.
type Generator struct {
	sel  *Selector
	pool *seeds.Pool
	enc  Encoder
}

var _ Feed = (*Generator)(nil)

func NewGenerator(templates []Template, pool *seeds.Pool, enc Encoder) (*Generator, error) {
	sel, err := NewSelector(templates)
	if err != nil {
		return nil, err
	}
	return &Generator{sel: sel, pool: pool, enc: enc}, nil
}

// Next picks a template and fills it from its seed list. An empty list makes
// the iteration a no-op.
func (g *Generator) Next(rng Intner) (Request, bool) {
	t := g.sel.Pick(rng)
	if t.Source == seeds.None {
		return t.Render("", g.enc), true
	}
	values := g.pool.Values(t.Source)
	if len(values) == 0 {
		return Request{}, false
	}
	return t.Render(values[rng.Intn(len(values))], g.enc), true
}

func (g *Generator) Exhaustible() bool { return false }

func (g *Generator) Selector() *Selector { return g.sel }

// QueueFeed consumes a prebuilt request list; each request is sent once.
type QueueFeed struct {
	q *seeds.Queue[Request]
}

var _ Feed = (*QueueFeed)(nil)

func NewQueueFeed(q *seeds.Queue[Request]) *QueueFeed {
	return &QueueFeed{q: q}
}

func (f *QueueFeed) Next(Intner) (Request, bool) { return f.q.Pop() }

func (f *QueueFeed) Exhaustible() bool { return true }

func (f *QueueFeed) Remaining() int { return f.q.Len() }

// CycleFeed walks a fixed request list round robin, shared by all actors.
type CycleFeed struct {
	requests []Request
	next     atomic.Uint64
}

var _ Feed = (*CycleFeed)(nil)

func NewCycleFeed(requests []Request) *CycleFeed {
	return &CycleFeed{requests: requests}
}

func (f *CycleFeed) Next(Intner) (Request, bool) {
	if len(f.requests) == 0 {
		return Request{}, false
	}
	i := f.next.Add(1) - 1
	return f.requests[i%uint64(len(f.requests))], true
}

func (f *CycleFeed) Exhaustible() bool { return false }

func (f *CycleFeed) Requests() []Request {
	return append([]Request(nil), f.requests...)
}

// BuildQueue expands every seed into its request, in the order the burst
// run consumes them: concepts, patterns, scheme CSVs, full paths, then the
// concept listing.
func BuildQueue(pool *seeds.Pool, enc Encoder) []Request {
	var out []Request
	expand := func(t Template) {
		for _, v := range pool.Values(t.Source) {
			out = append(out, t.Render(v, enc))
		}
	}
	expand(Template{Path: PathConcept, Source: seeds.UUIDs})
	expand(Template{Path: PathPattern, Source: seeds.PrefLabels, Encoding: PatternEncoding})
	expand(Template{Path: PathSchemeCSV, Source: seeds.Schemes})
	expand(Template{Path: PathFullPath, Source: seeds.UUIDs})
	out = append(out, Template{Path: PathConcepts}.Render("", enc))
	return out
}

const jsonFormat = "?format=json"

// UniquePaths returns the sorted, de-duplicated JSON request set of the
// hammer run: the concept listing plus one request per pattern and scheme.
// Each request is named by its own path so counts are kept per URL.
func UniquePaths(pool *seeds.Pool, enc Encoder) []Request {
	seen := make(map[string]Request)
	add := func(t Template, v string) {
		r := t.Render(v, enc)
		r.Path += jsonFormat
		r.Name = r.Path
		seen[r.Path] = r
	}
	add(Template{Path: PathConcepts}, "")
	for _, v := range pool.Values(seeds.PrefLabels) {
		add(Template{Path: PathPattern, Encoding: PatternEncoding}, v)
	}
	for _, v := range pool.Values(seeds.Schemes) {
		add(Template{Path: PathScheme}, v)
	}

	out := make([]Request, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
