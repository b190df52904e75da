package scenario

import (
	"fmt"
	"sort"
	"time"

	"kmsload/internal/pacing"
	"kmsload/internal/seeds"
)

type Mode string

const (
	ModeWeighted Mode = "weighted" // sample templates by weight
	ModeQueue    Mode = "queue"    // consume every seed once, then stop
	ModeCycle    Mode = "cycle"    // round robin over a fixed path set
)

// Scenario bundles a weighting table, a pacing policy and whether results
// are written to the CSV sink by default.
type Scenario struct {
	Name        string
	Description string
	Mode        Mode
	Templates   []Template
	Pacing      pacing.Spec
	Sink        bool
	Defaults    Defaults
}

// Defaults replace the generic run flag defaults for one scenario. Zero
// fields leave the generic default alone.
type Defaults struct {
	Users       int
	MaxRequests int64
	StatusEvery uint64
	BasePath    string
}

var catalog = map[string]Scenario{
	"concepts": {
		Name:        "concepts",
		Description: "concept listings, pattern and scheme lookups",
		Mode:        ModeWeighted,
		Templates: []Template{
			{Path: PathConcepts, Weight: 10},
			{Path: PathPattern, Weight: 8, Source: seeds.PrefLabels, Encoding: PatternEncoding},
			{Path: PathScheme, Weight: 7, Source: seeds.Schemes},
			{Path: PathSchemeCSV, Weight: 5, Source: seeds.Schemes},
			{Path: PathRoot, Weight: 3},
		},
		Pacing: pacing.Spec{
			Kind:  pacing.KindBetween,
			Range: pacing.Range{Min: 50 * time.Millisecond, Max: 300 * time.Millisecond},
		},
	},
	"mixed": {
		Name:        "mixed",
		Description: "every endpoint family, concept lookups weighted highest",
		Mode:        ModeWeighted,
		Templates: []Template{
			{Path: PathConcept, Weight: 8, Source: seeds.UUIDs},
			{Path: PathPattern, Weight: 4, Source: seeds.PrefLabels, Encoding: PatternEncoding},
			{Path: PathSchemeCSV, Weight: 3, Source: seeds.Schemes},
			{Path: PathFullPath, Weight: 2, Source: seeds.UUIDs},
			{Path: PathTreeAll, Weight: 2},
			{Path: PathConcepts, Weight: 1},
		},
		Pacing: pacing.Spec{
			Kind:  pacing.KindBetween,
			Range: pacing.Range{Min: 100 * time.Millisecond, Max: 1500 * time.Millisecond},
		},
	},
	"burst": {
		Name:        "burst",
		Description: "each seed once, in bursts separated by quiet periods; stops when drained",
		Mode:        ModeQueue,
		Pacing: pacing.Spec{
			Kind:   pacing.KindBurst,
			Active: pacing.Range{Min: 5 * time.Second, Max: 15 * time.Second},
			Idle:   pacing.Range{Min: 20 * time.Second, Max: 60 * time.Second},
		},
		Sink: true,
	},
	"hammer": {
		Name:        "hammer",
		Description: "round robin over every unique listing, pattern and scheme path",
		Mode:        ModeCycle,
		Pacing:      pacing.Spec{Kind: pacing.KindConstant},
		Defaults: Defaults{
			Users:       100,
			MaxRequests: 500,
			StatusEvery: 200,
			BasePath:    "/kms",
		},
	},
}

func Lookup(name string) (Scenario, error) {
	s, ok := catalog[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (want one of %v)", name, Names())
	}
	s.Templates = append([]Template(nil), s.Templates...)
	return s, nil
}

func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Feed builds the request source for the scenario from a loaded pool.
func (s Scenario) Feed(pool *seeds.Pool, enc Encoder) (Feed, error) {
	switch s.Mode {
	case ModeWeighted:
		return NewGenerator(s.Templates, pool, enc)
	case ModeQueue:
		return NewQueueFeed(seeds.NewQueue(BuildQueue(pool, enc)...)), nil
	case ModeCycle:
		return NewCycleFeed(UniquePaths(pool, enc)), nil
	default:
		return nil, fmt.Errorf("scenario %s: unknown mode %q", s.Name, s.Mode)
	}
}

// Requests lists the distinct requests the scenario can produce, for
// printing. Weighted scenarios expand every template over its whole list.
func (s Scenario) Requests(pool *seeds.Pool, enc Encoder) []Request {
	switch s.Mode {
	case ModeQueue:
		return BuildQueue(pool, enc)
	case ModeCycle:
		return UniquePaths(pool, enc)
	}

	var out []Request
	for _, t := range s.Templates {
		if t.Source == seeds.None {
			out = append(out, t.Render("", enc))
			continue
		}
		for _, v := range pool.Values(t.Source) {
			out = append(out, t.Render(v, enc))
		}
	}
	return out
}
