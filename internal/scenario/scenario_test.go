package scenario

import (
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmsload/internal/pacing"
	"kmsload/internal/seeds"
)

func TestSelector_ConvergesToWeights(t *testing.T) {
	templates := []Template{
		{Path: "/a", Weight: 10},
		{Path: "/b", Weight: 8},
		{Path: "/c", Weight: 7},
		{Path: "/d", Weight: 5},
		{Path: "/e", Weight: 3},
	}
	sel, err := NewSelector(templates)
	require.NoError(t, err)
	require.Equal(t, 33, sel.TotalWeight())

	const trials = 10000
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[sel.Pick(rng).Path]++
	}

	for _, tpl := range templates {
		want := float64(tpl.Weight) / 33
		got := float64(counts[tpl.Path]) / trials
		assert.InDelta(t, want, got, 0.02, "template %s", tpl.Path)
	}
}

type fixedIntn int

func (f fixedIntn) Intn(n int) int { return int(f) % n }

func TestSelector_BoundariesFollowCumulativeWeights(t *testing.T) {
	sel, err := NewSelector([]Template{{Path: "/a", Weight: 2}, {Path: "/b", Weight: 1}})
	require.NoError(t, err)

	assert.Equal(t, "/a", sel.Pick(fixedIntn(0)).Path)
	assert.Equal(t, "/a", sel.Pick(fixedIntn(1)).Path)
	assert.Equal(t, "/b", sel.Pick(fixedIntn(2)).Path)
}

func TestNewSelector_Rejects(t *testing.T) {
	_, err := NewSelector(nil)
	assert.ErrorIs(t, err, ErrNoTemplates)

	_, err = NewSelector([]Template{{Path: "/a", Weight: 1}, {Path: "/b", Weight: 0}})
	assert.ErrorIs(t, err, ErrBadWeight)
	assert.Contains(t, err.Error(), "/b")
}

func TestTemplate_Render(t *testing.T) {
	enc := DefaultEncoder
	assert.Equal(t, Request{Name: PathConcept, Path: "/concept/abc-123"},
		Template{Path: PathConcept}.Render("abc-123", enc))

	r := Template{Path: PathPattern, Encoding: PatternEncoding}.Render("EARTH SCIENCE/ATMOSPHERE", enc)
	assert.Equal(t, "/concepts/pattern/EARTH%20SCIENCE%252FATMOSPHERE", r.Path)
	assert.Equal(t, PathPattern, r.Name)

	r = Template{Path: PathSchemeCSV}.Render("sciencekeywords", enc)
	assert.Equal(t, "/concepts/concept_scheme/sciencekeywords?format=csv", r.Path)
	assert.Equal(t, PathSchemeCSV, r.Name)

	r = Template{Path: PathRoot, Name: "root"}.Render("ignored", enc)
	assert.Equal(t, Request{Name: "root", Path: PathRoot}, r)
}

func TestEncoder_DoubleEncodingCanBeDisabled(t *testing.T) {
	tpl := Template{Path: PathPattern, Encoding: PatternEncoding}
	assert.Equal(t, "/concepts/pattern/a%2Fb", tpl.Render("a/b", Encoder{}).Path)
	assert.Equal(t, "/concepts/pattern/a%252Fb", tpl.Render("a/b", DefaultEncoder).Path)
}

func TestGenerator_SingleSeedSinglePath(t *testing.T) {
	pool := &seeds.Pool{UUIDs: []string{"abc-123"}}
	g, err := NewGenerator([]Template{{Path: PathConcept, Weight: 1, Source: seeds.UUIDs}}, pool, DefaultEncoder)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		req, ok := g.Next(rng)
		require.True(t, ok)
		assert.Equal(t, "/concept/abc-123", req.Path)
	}
	assert.False(t, g.Exhaustible())
}

func TestGenerator_EmptyPoolIsNoop(t *testing.T) {
	pool := &seeds.Pool{}
	g, err := NewGenerator([]Template{
		{Path: PathPattern, Weight: 1, Source: seeds.PrefLabels, Encoding: PatternEncoding},
		{Path: PathConcepts, Weight: 1},
	}, pool, DefaultEncoder)
	require.NoError(t, err)

	served, skipped := 0, 0
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		req, ok := g.Next(rng)
		if !ok {
			skipped++
			continue
		}
		served++
		assert.Equal(t, PathConcepts, req.Path)
	}
	assert.Positive(t, served)
	assert.Positive(t, skipped)
}

func TestGenerator_NoUnresolvedPlaceholders(t *testing.T) {
	pool := &seeds.Pool{
		UUIDs:      []string{"u-1", "u-2"},
		PrefLabels: []string{"a/b", "c d"},
		Schemes:    []string{"sciencekeywords", "platforms"},
	}
	for _, name := range []string{"concepts", "mixed"} {
		s, err := Lookup(name)
		require.NoError(t, err)
		feed, err := s.Feed(pool, DefaultEncoder)
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 2000; i++ {
			req, ok := feed.Next(rng)
			require.True(t, ok)
			assert.NotContains(t, req.Path, "{")
			assert.NotContains(t, req.Path, "}")
			assert.True(t, strings.HasPrefix(req.Path, "/"))
		}
	}
}

func TestBuildQueue_OrderAndContent(t *testing.T) {
	pool := &seeds.Pool{
		UUIDs:      []string{"u-1"},
		PrefLabels: []string{"a/b"},
		Schemes:    []string{"platforms"},
	}
	got := BuildQueue(pool, DefaultEncoder)
	paths := make([]string, len(got))
	for i, r := range got {
		paths[i] = r.Path
	}
	assert.Equal(t, []string{
		"/concept/u-1",
		"/concepts/pattern/a%252Fb",
		"/concepts/concept_scheme/platforms?format=csv",
		"/concept_fullpaths/concept_uuid/u-1",
		"/concepts",
	}, paths)
}

func TestQueueFeed_DrainsOnceAcrossActors(t *testing.T) {
	pool := &seeds.Pool{UUIDs: []string{"1", "2", "3", "4", "5"}}
	s, err := Lookup("burst")
	require.NoError(t, err)
	feed, err := s.Feed(pool, DefaultEncoder)
	require.NoError(t, err)
	require.True(t, feed.Exhaustible())

	var mu sync.Mutex
	var total int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := feed.Next(nil); !ok {
					return
				}
				mu.Lock()
				total++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 11, total) // 5 concepts + 5 full paths + listing
}

func TestUniquePaths_SortedAndDeduplicated(t *testing.T) {
	pool := &seeds.Pool{
		PrefLabels: []string{"b", "a", "b"},
		Schemes:    []string{"s", "s"},
	}
	got := UniquePaths(pool, DefaultEncoder)
	paths := make([]string, len(got))
	for i, r := range got {
		paths[i] = r.Path
	}
	assert.Equal(t, []string{
		"/concepts/concept_scheme/s?format=json",
		"/concepts/pattern/a?format=json",
		"/concepts/pattern/b?format=json",
		"/concepts?format=json",
	}, paths)
	names := make(map[string]bool)
	for _, r := range got {
		assert.Equal(t, r.Path, r.Name)
		names[r.Name] = true
	}
	assert.Len(t, names, len(got))
}

func TestCycleFeed_RoundRobin(t *testing.T) {
	feed := NewCycleFeed([]Request{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}})
	var got []string
	for i := 0; i < 7; i++ {
		r, ok := feed.Next(nil)
		require.True(t, ok)
		got = append(got, r.Path)
	}
	assert.Equal(t, []string{"/a", "/b", "/c", "/a", "/b", "/c", "/a"}, got)

	_, ok := NewCycleFeed(nil).Next(nil)
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []string{"burst", "concepts", "hammer", "mixed"}, Names())

	_, err := Lookup("nope")
	assert.Error(t, err)

	for _, name := range Names() {
		s, err := Lookup(name)
		require.NoError(t, err)
		assert.NoError(t, s.Pacing.Validate(), name)
	}

	hammer, _ := Lookup("hammer")
	assert.Equal(t, Defaults{Users: 100, MaxRequests: 500, StatusEvery: 200, BasePath: "/kms"}, hammer.Defaults)

	concepts, _ := Lookup("concepts")
	weights := []int{}
	for _, tpl := range concepts.Templates {
		weights = append(weights, tpl.Weight)
	}
	assert.Equal(t, []int{10, 8, 7, 5, 3}, weights)

	burst, _ := Lookup("burst")
	assert.True(t, burst.Sink)
	assert.Equal(t, pacing.KindBurst, burst.Pacing.Kind)

	// Lookup hands out copies
	concepts.Templates[0].Weight = 99
	again, _ := Lookup("concepts")
	assert.Equal(t, 10, again.Templates[0].Weight)
}

func TestScenario_Requests(t *testing.T) {
	pool := &seeds.Pool{UUIDs: []string{"u"}, PrefLabels: []string{"p"}, Schemes: []string{"s"}}
	mixed, _ := Lookup("mixed")
	got := mixed.Requests(pool, DefaultEncoder)
	assert.Len(t, got, 6)

	hammer, _ := Lookup("hammer")
	assert.Len(t, hammer.Requests(pool, DefaultEncoder), 3)
}
