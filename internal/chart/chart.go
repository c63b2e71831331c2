// Package chart shapes per-country surface totals into bar chart data.
package chart

import (
	"cmp"
	"slices"
)

// Bar is one labelled bar of the surface-by-country chart.
type Bar struct {
	Code     string  `json:"code" doc:"Country code, or N/A" example:"BRA"`
	Hectares float64 `json:"hectares" doc:"Summed surface in hectares" example:"150000"`
}

// Bars returns one bar per country code, largest surface first, ties broken
// by code. A positive limit keeps only the first limit bars.
func Bars(byCountry map[string]float64, limit int) []Bar {
	bars := make([]Bar, 0, len(byCountry))
	for code, ha := range byCountry {
		bars = append(bars, Bar{Code: code, Hectares: ha})
	}
	slices.SortFunc(bars, func(a, b Bar) int {
		if c := cmp.Compare(b.Hectares, a.Hectares); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	if limit > 0 && len(bars) > limit {
		bars = bars[:limit]
	}
	return bars
}

// Dataset is the payload consumed by the bar chart widget.
type Dataset struct {
	Labels []string  `json:"labels" doc:"Bar labels"`
	Values []float64 `json:"values" doc:"Bar values in hectares"`
	Total  float64   `json:"total" doc:"Sum of all bars"`
}

// NewDataset flattens bars into parallel label and value slices.
func NewDataset(bars []Bar) Dataset {
	d := Dataset{
		Labels: make([]string, 0, len(bars)),
		Values: make([]float64, 0, len(bars)),
	}
	for _, b := range bars {
		d.Labels = append(d.Labels, b.Code)
		d.Values = append(d.Values, b.Hectares)
		d.Total += b.Hectares
	}
	return d
}
