// Package legend turns the deal aggregates into legend values: circle radii,
// labels and colours.
package legend

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
)

// NoDataLabel is shown instead of a number when the view has no surface.
const NoDataLabel = "No data"

// Scale maps a surface in hectares to a circle radius in pixels:
// sqrt(surface) * Factor, clamped to [MinRadius, MaxRadius].
//
// The same Scale must drive the map circles, the live legend and the static
// key so that equal surfaces draw equal circles.
type Scale struct {
	Factor    float64 `json:"factor" yaml:"factor" doc:"Multiplier applied to sqrt(surface)" default:"0.04"`
	MinRadius float64 `json:"minRadius" yaml:"minRadius" doc:"Smallest radius in pixels" default:"4"`
	MaxRadius float64 `json:"maxRadius" yaml:"maxRadius" doc:"Largest radius in pixels" default:"30"`
}

// DefaultScale is the deal circle scale of the map.
var DefaultScale = Scale{Factor: 0.04, MinRadius: 4, MaxRadius: 30}

// CentroidCountScale sizes per-country centroid circles by deal count.
var CentroidCountScale = Scale{Factor: 10, MinRadius: 0, MaxRadius: math.Inf(1)}

// CentroidSurfaceScale sizes per-country centroid circles by total surface.
var CentroidSurfaceScale = Scale{Factor: 0.02, MinRadius: 0, MaxRadius: math.Inf(1)}

// Radius returns the clamped radius for a surface. Negative input is treated
// as zero.
func (s Scale) Radius(hectares float64) float64 {
	r := math.Sqrt(math.Max(hectares, 0)) * s.Factor
	return math.Min(math.Max(r, s.MinRadius), s.MaxRadius)
}

// ScalarRadius returns the radius for a legend scalar, or 0 when there is no
// data.
func (s Scale) ScalarRadius(v filter.Scalar) float64 {
	if !v.Valid {
		return 0
	}
	return s.Radius(v.Hectares)
}

// KeyEntry is one circle of the static legend key.
type KeyEntry struct {
	Hectares float64 `json:"hectares" doc:"Reference surface"`
	Radius   float64 `json:"radius" doc:"Circle radius in pixels"`
	Label    string  `json:"label" doc:"Formatted surface"`
}

// DefaultKey holds the reference surfaces of the static key.
var DefaultKey = []float64{10_000, 100_000, 500_000}

// Key builds the static legend key for the given reference surfaces.
func (s Scale) Key(values []float64) []KeyEntry {
	out := make([]KeyEntry, 0, len(values))
	for _, v := range values {
		out = append(out, KeyEntry{
			Hectares: v,
			Radius:   s.Radius(v),
			Label:    Hectares(v),
		})
	}
	return out
}

var printer = message.NewPrinter(language.English)

// Hectares formats a surface with thousands separators, e.g. "1,250,000 ha".
func Hectares(v float64) string {
	return printer.Sprintf("%.0f ha", math.Round(v))
}

// Label formats a legend scalar.
func Label(v filter.Scalar) string {
	if !v.Valid {
		return NoDataLabel
	}
	return Hectares(v.Hectares)
}

// Crop colours of the deal circles.
const (
	ColorOilPalm   = "#f4f006ff"
	ColorSoya      = "#e6550d"
	ColorSugarCane = "#ffc400ff"
	ColorOther     = "#363d7aff"
)

// CropColor returns the fill colour of a crop class.
func CropColor(c deal.CropClass) string {
	switch c {
	case deal.CropOilPalm:
		return ColorOilPalm
	case deal.CropSoya:
		return ColorSoya
	case deal.CropSugarCane:
		return ColorSugarCane
	}
	return ColorOther
}

// CropEntry is one swatch of the crop legend.
type CropEntry struct {
	Class deal.CropClass `json:"class"`
	Label string         `json:"label"`
	Color string         `json:"color"`
}

// CropLegend returns the crop swatches in legend order.
func CropLegend() []CropEntry {
	labels := map[deal.CropClass]string{
		deal.CropOilPalm:   "Oil palm",
		deal.CropSoya:      "Soya beans",
		deal.CropSugarCane: "Sugar cane",
		deal.CropOther:     "Other crops",
	}
	out := make([]CropEntry, 0, len(deal.CropClasses))
	for _, c := range deal.CropClasses {
		out = append(out, CropEntry{Class: c, Label: labels[c], Color: CropColor(c)})
	}
	return out
}

// OAIColor returns the choropleth colour for an agricultural orientation index
// value. A nil value is grey.
func OAIColor(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return "#ccc"
	}
	switch x := *v; {
	case x > 1.5:
		return "#4dac26"
	case x > 1:
		return "#b8e186"
	case x > 0.5:
		return "#f1b6da"
	case x > 0:
		return "#d01c8b"
	}
	return "#fdfdfdff"
}
