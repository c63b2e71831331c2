// Package filter decides which deals are visible for a year/region selection
// and derives the legend and chart aggregates from them.
//
// Every function here is pure and synchronous. Callers that share a record
// slice across goroutines must hold it read-only for the duration of a pass.
package filter

import (
	"iter"
	"slices"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
)

// UnknownCountryCode groups deals without a country code.
const UnknownCountryCode = "N/A"

// Selection is the user's current year and region choice. A nil Year means no
// year filter; an empty Region or region.World means every configured region.
type Selection struct {
	Year   *int   `json:"year,omitempty"`
	Region string `json:"region,omitempty"`
}

// Scalar is a legend value that may be absent.
type Scalar struct {
	Hectares float64 `json:"hectares"`
	Valid    bool    `json:"valid"`
}

// NoData is the Scalar returned when nothing carries a surface.
var NoData = Scalar{}

// IsMatch reports whether r is visible under sel.
func IsMatch(r deal.Record, sel Selection, regions *region.Table) bool {
	if sel.Year != nil && (r.Year == nil || *r.Year != *sel.Year) {
		return false
	}
	return regions.Contains(sel.Region, r.RegionName)
}

// FilterVisible yields the records matching sel in input order. The sequence
// can be ranged over any number of times.
func FilterVisible(records []deal.Record, sel Selection, regions *region.Table) iter.Seq[deal.Record] {
	return func(yield func(deal.Record) bool) {
		for _, r := range records {
			if !IsMatch(r, sel, regions) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// InBounds yields the records whose location lies inside b.
func InBounds(seq iter.Seq[deal.Record], b orb.Bound) iter.Seq[deal.Record] {
	return func(yield func(deal.Record) bool) {
		for r := range seq {
			if !b.Contains(r.Location) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// ByCrop yields the records growing the given crop. A deal with several crop
// flags is yielded for each of them.
func ByCrop(seq iter.Seq[deal.Record], class deal.CropClass) iter.Seq[deal.Record] {
	return func(yield func(deal.Record) bool) {
		for r := range seq {
			if !r.HasCrop(class) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Collect materializes seq. It never returns nil.
func Collect(seq iter.Seq[deal.Record]) []deal.Record {
	out := slices.Collect(seq)
	if out == nil {
		out = []deal.Record{}
	}
	return out
}

// MaxSurfaceInView returns the largest surface in seq. Zero surfaces count;
// records without a surface are skipped. NoData is returned when no record
// carries a surface.
func MaxSurfaceInView(seq iter.Seq[deal.Record]) Scalar {
	best := NoData
	for r := range seq {
		if r.Surface == nil {
			continue
		}
		if !best.Valid || *r.Surface > best.Hectares {
			best = Scalar{Hectares: *r.Surface, Valid: true}
		}
	}
	return best
}

// AggregateSurfaceByCountryCode sums surfaces per country code. Deals without
// a code land under UnknownCountryCode; deals without a surface still create
// their group but add nothing to it.
func AggregateSurfaceByCountryCode(seq iter.Seq[deal.Record]) map[string]float64 {
	totals := make(map[string]decimal.Decimal)
	for r := range seq {
		code := r.CountryCode
		if code == "" {
			code = UnknownCountryCode
		}
		sum := totals[code]
		if r.Surface != nil {
			sum = sum.Add(decimal.NewFromFloat(*r.Surface))
		}
		totals[code] = sum
	}

	out := make(map[string]float64, len(totals))
	for code, sum := range totals {
		out[code] = sum.InexactFloat64()
	}
	return out
}
