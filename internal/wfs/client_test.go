package wfs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collection = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"id":1}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"id":2}}
]}`

func TestFeatureURL(t *testing.T) {
	c := New(Config{
		BaseURL:     "http://localhost:8080/geoserver/land_matrix/ows",
		TypeName:    "land_matrix:deals",
		MaxFeatures: 50,
	}, nil, nil)

	raw, err := c.FeatureURL()
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/geoserver/land_matrix/ows", u.Path)
	q := u.Query()
	assert.Equal(t, "WFS", q.Get("service"))
	assert.Equal(t, "1.0.0", q.Get("version"))
	assert.Equal(t, "GetFeature", q.Get("request"))
	assert.Equal(t, "land_matrix:deals", q.Get("typeName"))
	assert.Equal(t, "application/json", q.Get("outputFormat"))
	assert.Equal(t, "50", q.Get("maxFeatures"))
}

func TestFetchFeaturesRetries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "land_matrix:deals", r.URL.Query().Get("typeName"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(collection))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/ows", TypeName: "land_matrix:deals", RetryDelay: time.Millisecond}, nil, nil)
	fc, err := c.FetchFeatures(context.Background())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchFeaturesDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such type", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, TypeName: "x", RetryDelay: time.Millisecond}, nil, nil)
	_, err := c.FetchFeatures(context.Background())
	require.Error(t, err)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchFeaturesBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<ServiceExceptionReport/>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, TypeName: "x"}, nil, nil)
	_, err := c.FetchFeatures(context.Background())
	assert.Error(t, err)
}
