package legend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
)

func TestRadiusClamp(t *testing.T) {
	tests := []struct {
		hectares float64
		want     float64
	}{
		{0, 4},
		{-10, 4},
		{10_000, 4},     // sqrt = 100 -> 4
		{250_000, 20},   // sqrt = 500 -> 20
		{1_000_000, 30}, // sqrt = 1000 -> 40, clamped
		{562_500, 30},   // exactly max
		{40_000_000, 30},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DefaultScale.Radius(tt.hectares), 1e-9, "hectares=%v", tt.hectares)
	}
}

func TestRadiusMonotonic(t *testing.T) {
	prev := DefaultScale.Radius(0)
	for v := 0.0; v < 2_000_000; v += 12_345 {
		r := DefaultScale.Radius(v)
		assert.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestKeyMatchesLiveRadius(t *testing.T) {
	key := DefaultScale.Key(DefaultKey)
	for _, e := range key {
		live := DefaultScale.ScalarRadius(filter.Scalar{Hectares: e.Hectares, Valid: true})
		assert.Equal(t, live, e.Radius)
	}
	assert.Equal(t, 0.0, DefaultScale.ScalarRadius(filter.NoData))
}

func TestCentroidScales(t *testing.T) {
	assert.InDelta(t, 30, CentroidCountScale.Radius(9), 1e-9)
	assert.InDelta(t, 20, CentroidSurfaceScale.Radius(1_000_000), 1e-9)
	assert.False(t, math.IsInf(CentroidSurfaceScale.Radius(1e12), 0))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, NoDataLabel, Label(filter.NoData))
	assert.Equal(t, "0 ha", Label(filter.Scalar{Valid: true}))
	assert.Equal(t, "1,250,000 ha", Label(filter.Scalar{Hectares: 1_250_000, Valid: true}))
}

func TestCropColors(t *testing.T) {
	assert.Equal(t, ColorOilPalm, CropColor(deal.CropOilPalm))
	assert.Equal(t, ColorOther, CropColor(deal.CropClass("maize")))

	entries := CropLegend()
	assert.Len(t, entries, 4)
	assert.Equal(t, deal.CropOther, entries[3].Class)
}

func TestOAIColor(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	assert.Equal(t, "#ccc", OAIColor(nil))
	assert.Equal(t, "#ccc", OAIColor(f(math.NaN())))
	assert.Equal(t, "#4dac26", OAIColor(f(2)))
	assert.Equal(t, "#b8e186", OAIColor(f(1.5)))
	assert.Equal(t, "#f1b6da", OAIColor(f(0.7)))
	assert.Equal(t, "#d01c8b", OAIColor(f(0.1)))
	assert.Equal(t, "#fdfdfdff", OAIColor(f(0)))
}

func TestPopupFor(t *testing.T) {
	p := PopupFor(deal.Record{ID: "12", Country: "Peru", Year: deal.Int(2012), Surface: deal.Float(15000), NegativeSocialImpact: true})
	assert.Equal(t, Popup{
		Title:        "Deal #12",
		Country:      "Peru",
		Year:         "2012",
		Surface:      "15,000 ha",
		Crops:        "—",
		SocialImpact: "Yes",
	}, p)

	p = PopupFor(deal.Record{ID: "13", Surface: deal.Float(0)})
	assert.Equal(t, "—", p.Surface)
	assert.Equal(t, "—", p.Year)
	assert.Equal(t, "No", p.SocialImpact)
}
