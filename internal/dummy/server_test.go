package dummy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmsload/internal/scenario"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_PatternSurvivesGatewayDecode(t *testing.T) {
	s := NewServer(ServerConfig{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tpl := scenario.Template{Path: scenario.PathPattern, Encoding: scenario.PatternEncoding}
	req := tpl.Render("EARTH SCIENCE/ATMOSPHERE", scenario.DefaultEncoder)

	code, _ := get(t, ts.URL+req.Path)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"EARTH SCIENCE/ATMOSPHERE"}, s.Seen(scenario.PathPattern))
}

func TestServer_SingleEncodedSlashIsNotFound(t *testing.T) {
	s := NewServer(ServerConfig{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tpl := scenario.Template{Path: scenario.PathPattern, Encoding: scenario.PatternEncoding}
	req := tpl.Render("EARTH SCIENCE/ATMOSPHERE", scenario.Encoder{})

	code, _ := get(t, ts.URL+req.Path)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Empty(t, s.Seen(scenario.PathPattern))
}

func TestServer_BasePathAndFormats(t *testing.T) {
	s := NewServer(ServerConfig{BasePath: "kms/"})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/kms/concepts/concept_scheme/sciencekeywords?format=csv")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Keyword,UUID")
	assert.Equal(t, []string{"sciencekeywords"}, s.Seen(scenario.PathScheme))

	code, body = get(t, ts.URL+"/kms/concepts")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "EARTH SCIENCE")
	assert.Equal(t, uint64(1), s.Hits(scenario.PathConcepts))

	code, _ = get(t, ts.URL+"/concepts")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ErrorRate(t *testing.T) {
	s := NewServer(ServerConfig{ErrorRate: 1})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, _ := get(t, ts.URL+"/concepts/root")
	assert.Equal(t, http.StatusInternalServerError, code)
}
