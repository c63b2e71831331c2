package loader

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-landmatrix/internal/db"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/service"
	"github.com/joeblew999/plat-landmatrix/internal/wfs"
)

const wfsDeals = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[30,15]},
  "properties":{"id":"1","region_name":"Africa","country_code":"sdn","surface_ha":1000,"created_at":"2010-05-01"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[100,10]},
  "properties":{"id":"2","region_name":"Atlantis","surface_ha":50}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},
  "properties":{"id":"3","region_name":"Africa","surface_ha":-4}}
]}`

const fileDeals = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[-47,-15]},
  "properties":{"id":"9","region_name":"Latin America and the Caribbean","crop_soya_beans":true}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[30,15]},
  "properties":{"id":"1","region_name":"Africa"}}
]}`

func TestParseSources(t *testing.T) {
	got, err := ParseSources("wfs:land_matrix:deals, file:deals.geojson,duckdb")
	require.NoError(t, err)
	assert.Equal(t, []Source{
		{Kind: KindWFS, Name: "land_matrix:deals"},
		{Kind: KindFile, Name: "deals.geojson"},
		{Kind: KindDuckDB},
	}, got)
	assert.Equal(t, "wfs:land_matrix:deals", got[0].String())
	assert.Equal(t, "duckdb", got[2].String())

	_, err = ParseSources("ftp:x")
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = ParseSources("file")
	assert.Error(t, err)

	_, err = ParseSources(" , ")
	assert.Error(t, err)
}

func TestLoadMergesSourcesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wfsDeals))
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	files := service.NewSourceService(dataDir)
	require.NoError(t, os.MkdirAll(files.SourcesDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(files.SourcesDir(), "extra.geojson"), []byte(fileDeals), 0644))

	l := New(Config{
		WFS:   wfs.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond},
		Files: files,
	})
	res, err := l.Load(context.Background(), []Source{
		{Kind: KindWFS, Name: "land_matrix:deals"},
		{Kind: KindFile, Name: "extra.geojson"},
	})
	require.NoError(t, err)

	ids := make([]string, len(res.Records))
	for i, r := range res.Records {
		ids[i] = r.ID
	}
	// 3 fails validation, the second 1 is a duplicate.
	assert.Equal(t, []string{"1", "2", "9"}, ids)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []string{"Atlantis"}, res.Unmapped)
	assert.Equal(t, "wfs:land_matrix:deals,file:extra.geojson", res.Source)

	first := res.Records[0]
	assert.Equal(t, "SDN", first.CountryCode)
	assert.Equal(t, 2010, *first.Year)
	assert.Equal(t, orb.Point{30, 15}, first.Location)
}

func TestLoadFailsWhenAnySourceFails(t *testing.T) {
	l := New(Config{Files: service.NewSourceService(t.TempDir())})
	_, err := l.Load(context.Background(), []Source{{Kind: KindFile, Name: "missing.geojson"}})
	assert.Error(t, err)

	_, err = l.Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestReloadFromSnapshot(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	records := []deal.Record{
		{ID: "a", RegionName: "Africa", Surface: deal.Float(10)},
		{ID: "b", RegionName: "Oceania", Year: deal.Int(2012)},
	}
	require.NoError(t, db.SaveDeals(context.Background(), conn, records))

	deals := service.NewDealService(nil, nil)
	l := New(Config{DB: func() (*sql.DB, error) { return conn, nil }})
	res, err := l.Reload(context.Background(), deals, []Source{{Kind: KindDuckDB}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)

	st := deals.Status()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, "duckdb", st.Source)
}
