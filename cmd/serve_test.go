package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-overlays/internal/api"
	"github.com/sells-group/tract-overlays/internal/config"
	"github.com/sells-group/tract-overlays/internal/controller"
)

const testTracts = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"GEOID":"06037101110","NAME":"1011.10"},
	 "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	{"type":"Feature","properties":{"GEOID":"06037101122","NAME":"1011.22"},
	 "geometry":{"type":"Polygon","coordinates":[[[1,1],[2,1],[2,2],[1,1]]]}}
]}`

const testOverlaysFile = `
overlays:
  - id: income
    title: Median Household Income
    source: census/income.csv
    property: median_household_income
    format: {style: currency}
    brackets:
      - {min: 0, max: 60000, color: "#08306b"}
      - {min: 60000, color: "#2171b5"}
  - id: ownership
    title: Home Ownership Rate
    source: census/ownership.csv
    property: home_ownership_rate
    format: {style: percent}
    brackets:
      - {min: 0, max: 0.5, color: "#ffffcc"}
      - {min: 0.5, color: "#fed976"}
`

func writeFixture(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")

	writeFixture(t, filepath.Join(data, "tracts.geojson"), testTracts)
	writeFixture(t, filepath.Join(data, "census", "income.csv"),
		"median_household_income,GEOID\n72000,06037101110\n-666666666,06037101122\n")
	writeFixture(t, filepath.Join(data, "census", "ownership.csv"),
		"home_ownership_rate,GEOID\n0.64,06037101110\n")
	writeFixture(t, filepath.Join(dir, "overlays.yaml"), testOverlaysFile)

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	c, err := config.Load()
	require.NoError(t, err)

	c.Server.DataDir = data
	c.Geometry.Location = "tracts.geojson"
	c.Geometry.TempDir = filepath.Join(dir, "tmp")
	c.Overlays.File = filepath.Join(dir, "overlays.yaml")
	require.NoError(t, c.Validate("serve"))
	return c
}

func startServer(t *testing.T, c *config.Config) *httptest.Server {
	t.Helper()
	server, _, err := newServer(c)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		server.Close()
	})
	return ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestNewServer_EndToEnd(t *testing.T) {
	ts := startServer(t, testConfig(t))

	resp, err := http.Post(ts.URL+"/sessions?wait=true", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var sess struct {
		ID     string            `json:"id"`
		Status controller.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &sess))
	assert.Equal(t, controller.StateReady, sess.Status.State)
	assert.Equal(t, "income", sess.Status.Active)
	assert.Empty(t, sess.Status.Degraded)
	require.NotNil(t, sess.Status.Join)
	assert.Equal(t, 2, sess.Status.Join.Features)
	assert.Equal(t, 1, sess.Status.Join.Matched["ownership"])

	var ins controller.Inspection
	resp = getJSON(t, ts.URL+"/sessions/"+sess.ID+"/features/06037101110", &ins)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ins.Overlays, 2)
	assert.Equal(t, "$72,000", ins.Overlays[0].Display)
	assert.Equal(t, "#2171b5", ins.Overlays[0].Fill)
	assert.Equal(t, "64%", ins.Overlays[1].Display)

	resp = getJSON(t, ts.URL+"/sessions/"+sess.ID+"/features/06037101122", &ins)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "#e7298a", ins.Overlays[0].Fill, "ACS sentinel values classify as non-positive")
	assert.Equal(t, "#808080", ins.Overlays[1].Fill)

	resp = getJSON(t, ts.URL+"/data/census/income.csv", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.StaticCacheControl, resp.Header.Get("Cache-Control"))
}

func TestNewServer_MissingDatasetDegrades(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.Remove(filepath.Join(c.Server.DataDir, "census", "ownership.csv")))
	ts := startServer(t, c)

	resp, err := http.Post(ts.URL+"/sessions?wait=true", "application/json", nil)
	require.NoError(t, err)
	var sess struct {
		Status controller.Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	_ = resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, controller.StateReady, sess.Status.State)
	assert.Contains(t, sess.Status.Degraded, "ownership")
}

func TestNewServer_FetchAttemptsHonorConfig(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testConfig(t)
	c.Fetch.MaxRetries = 2
	c.Fetch.RetryBackoffMs = 1
	overlays := strings.Replace(testOverlaysFile, "census/ownership.csv", srv.URL+"/ownership.csv", 1)
	writeFixture(t, c.Overlays.File, overlays)
	ts := startServer(t, c)

	resp, err := http.Post(ts.URL+"/sessions?wait=true", "application/json", nil)
	require.NoError(t, err)
	var sess struct {
		Status controller.Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	_ = resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, sess.Status.Degraded, "ownership")
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewServer_MissingGeometryFails(t *testing.T) {
	c := testConfig(t)
	c.Geometry.Location = "nope.geojson"
	ts := startServer(t, c)

	resp, err := http.Post(ts.URL+"/sessions?wait=true", "application/json", nil)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed", body["state"])
	assert.NotEmpty(t, body["error"])
}

func TestNewServer_BadOverlaysFile(t *testing.T) {
	c := testConfig(t)
	c.Overlays.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err := newServer(c)
	assert.Error(t, err)
}
