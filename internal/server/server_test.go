package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-landmatrix/internal/loader"
)

const dealsFile = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[30,15]},
  "properties":{"id":"1","region_name":"Africa","country_code":"SDN","surface_ha":1000,"created_at":"2010"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[100,10]},
  "properties":{"id":"2","region_name":"Asia","country_code":"IDN","surface_ha":250}}
]}`

func newTestServer(t *testing.T, sources ...loader.Source) *Server {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "sources"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sources", "deals.geojson"), []byte(dealsFile), 0644))

	srv, err := New(Config{
		Host:         "localhost",
		Port:         "8086",
		DataDir:      dataDir,
		GeoServerURL: "http://geo.local/geoserver/land_matrix",
		Sources:      sources,
		NoDB:         true,
	})
	require.NoError(t, err)
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLoadFromFileSource(t *testing.T) {
	srv := newTestServer(t, loader.Source{Kind: loader.KindFile, Name: "deals.geojson"})
	require.NoError(t, srv.Load(context.Background()))

	st := srv.Services().Deals.Status()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, "file:deals.geojson", st.Source)

	rec := get(srv, "/api/v1/legend?region=Asia")
	require.Equal(t, http.StatusOK, rec.Code)
	var legend struct {
		Count int    `json:"count"`
		Label string `json:"label"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &legend))
	assert.Equal(t, 1, legend.Count)
	assert.Equal(t, "250 ha", legend.Label)
}

func TestLoadFailsWithoutSnapshot(t *testing.T) {
	srv := newTestServer(t, loader.Source{Kind: loader.KindFile, Name: "missing.geojson"})
	assert.Error(t, srv.Load(context.Background()))
	assert.Equal(t, 0, srv.Services().Deals.Status().Count)
}

func TestRootAdvertisesLinks(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plat-landmatrix")
	links := strings.Join(rec.Header().Values("Link"), ", ")
	assert.Contains(t, links, `rel="service-desc"`)

	assert.Equal(t, http.StatusNotFound, get(srv, "/nowhere").Code)
	assert.Equal(t, http.StatusNotFound, get(srv, "/viewer").Code)
}

func TestOpenAPIListsRoutes(t *testing.T) {
	srv := newTestServer(t)

	paths := srv.OpenAPI().Paths
	for _, p := range []string{
		"/health",
		"/api/v1/deals",
		"/api/v1/legend",
		"/api/v1/chart",
		"/api/v1/layers/{id}",
		"/api/v1/viewer/selection",
		"/api/v1/tables",
	} {
		assert.Contains(t, paths, p)
	}

	rec := get(srv, "/api/v1/tables")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunStopsWithContext(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
