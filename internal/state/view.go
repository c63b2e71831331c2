// Package state owns the viewer's selection and recomputes the derived deal
// views whenever the selection changes.
package state

import (
	"slices"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
	"github.com/joeblew999/plat-landmatrix/internal/region"
)

// DefaultChartLimit caps the number of bars in the country chart.
const DefaultChartLimit = 15

// Query is a selection plus the optional viewport and crop narrowing.
type Query struct {
	filter.Selection
	Bounds *orb.Bound     `json:"bounds,omitempty"`
	Crop   deal.CropClass `json:"crop,omitempty"`
}

// View is everything the map, legend and chart render for one Query.
type View struct {
	Query       Query              `json:"query"`
	RegionLabel string             `json:"regionLabel"`
	Visible     []deal.Record      `json:"-"`
	Count       int                `json:"count"`
	MaxSurface  filter.Scalar      `json:"maxSurface"`
	Radius      float64            `json:"radius"`
	Label       string             `json:"label"`
	ByCountry   map[string]float64 `json:"byCountry"`
	Bars        []chart.Bar        `json:"bars"`
}

// Options tunes Compute.
type Options struct {
	Scale      legend.Scale
	ChartLimit int
}

// DefaultOptions uses the map's circle scale and chart size.
var DefaultOptions = Options{Scale: legend.DefaultScale, ChartLimit: DefaultChartLimit}

// Compute derives a View from the records. Visibility follows the year,
// region and crop selection. The legend maximum is further reduced to the
// viewport when one is set; the chart covers every visible deal.
func Compute(records []deal.Record, regions *region.Table, q Query, opts Options) View {
	seq := filter.FilterVisible(records, q.Selection, regions)
	if q.Crop != "" {
		seq = filter.ByCrop(seq, q.Crop)
	}
	visible := filter.Collect(seq)

	inView := slices.Values(visible)
	if q.Bounds != nil {
		inView = filter.InBounds(inView, *q.Bounds)
	}

	top := filter.MaxSurfaceInView(inView)
	byCountry := filter.AggregateSurfaceByCountryCode(slices.Values(visible))

	label := region.World
	if q.Region != "" && q.Region != region.World {
		label = regions.Label(q.Region)
	}

	return View{
		Query:       q,
		RegionLabel: label,
		Visible:     visible,
		Count:       len(visible),
		MaxSurface:  top,
		Radius:      opts.Scale.ScalarRadius(top),
		Label:       legend.Label(top),
		ByCountry:   byCountry,
		Bars:        chart.Bars(byCountry, opts.ChartLimit),
	}
}
