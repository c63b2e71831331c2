package state

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
)

func TestParseQuery(t *testing.T) {
	regions := region.Default()

	q, err := ParseQuery(QueryParams{}, regions)
	require.NoError(t, err)
	assert.Equal(t, Query{}, q)

	q, err = ParseQuery(QueryParams{Year: "2012", Region: "Africa", BBox: "-20,-35,55,38", Crop: "soy"}, regions)
	require.NoError(t, err)
	assert.Equal(t, 2012, *q.Year)
	assert.Equal(t, "Africa", q.Region)
	assert.Equal(t, orb.Bound{Min: orb.Point{-20, -35}, Max: orb.Point{55, 38}}, *q.Bounds)
	assert.Equal(t, deal.CropSoya, q.Crop)

	tests := []struct {
		name string
		p    QueryParams
	}{
		{"bad year", QueryParams{Year: "twenty"}},
		{"unknown region", QueryParams{Region: "Atlantis"}},
		{"short bbox", QueryParams{BBox: "1,2,3"}},
		{"inverted bbox", QueryParams{BBox: "10,0,0,10"}},
		{"bad crop", QueryParams{Crop: "maize"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.p, regions)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery))
		})
	}

	_, err = ParseQuery(QueryParams{Region: "Atlantis"}, regions)
	assert.True(t, errors.Is(err, region.ErrUnknownGroup))
}
