package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
)

// ErrInvalidQuery wraps every ParseQuery failure.
var ErrInvalidQuery = errors.New("invalid query")

// QueryParams are the textual selection parameters of the API and CLI.
// Empty strings mean "not set".
type QueryParams struct {
	Year   string
	Region string
	BBox   string
	Crop   string
}

// ParseQuery validates params against regions and builds a Query.
func ParseQuery(p QueryParams, regions *region.Table) (Query, error) {
	var q Query

	if y := strings.TrimSpace(p.Year); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return Query{}, fmt.Errorf("%w: year %q", ErrInvalidQuery, p.Year)
		}
		q.Year = &n
	}

	q.Region = strings.TrimSpace(p.Region)
	if err := regions.Check(q.Region); err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	if b := strings.TrimSpace(p.BBox); b != "" {
		bound, err := ParseBBox(b)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		q.Bounds = &bound
	}

	if c := strings.TrimSpace(p.Crop); c != "" {
		class, ok := deal.ParseCropClass(c)
		if !ok {
			return Query{}, fmt.Errorf("%w: crop %q", ErrInvalidQuery, p.Crop)
		}
		q.Crop = class
	}
	return q, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
