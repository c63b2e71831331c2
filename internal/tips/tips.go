// Package tips writes the short "investment tips" shown next to the map for
// the current selection.
package tips

import (
	"fmt"
	"math"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/state"
)

// Tip levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Tip is one line of contextual advice.
type Tip struct {
	Level string `json:"level" enum:"info,warning" doc:"Severity"`
	Text  string `json:"text" doc:"Tip text"`
}

// For derives the tips of a view. unmapped lists data regions no group
// covers; they are invisible under every selection.
func For(v state.View, unmapped []string) []Tip {
	out := []Tip{}

	if v.Count == 0 {
		out = append(out, Tip{Level: LevelInfo, Text: "No deals match this selection. Try another year or " + region.World + "."})
	} else {
		out = append(out, Tip{Level: LevelInfo, Text: fmt.Sprintf("%s %s.", deals(v.Count), scope(v))})
		if len(v.Bars) > 0 && v.Bars[0].Code != filter.UnknownCountryCode && v.Bars[0].Hectares > 0 {
			out = append(out, Tip{
				Level: LevelInfo,
				Text:  fmt.Sprintf("%s holds the largest acquired surface (%s).", v.Bars[0].Code, legend.Hectares(v.Bars[0].Hectares)),
			})
		}
		if c, share := dominantCrop(v.Visible); c != deal.CropOther && share >= 0.5 {
			out = append(out, Tip{
				Level: LevelInfo,
				Text:  fmt.Sprintf("%s dominates: %.0f%% of the deals.", cropName(c), share*100),
			})
		}
		if share := negativeShare(v.Visible); share > 0 {
			level := LevelInfo
			if share >= 0.25 {
				level = LevelWarning
			}
			out = append(out, Tip{
				Level: level,
				Text:  fmt.Sprintf("%.0f%% of these deals report negative impacts on local communities.", math.Round(share*100)),
			})
		}
		if !v.MaxSurface.Valid {
			out = append(out, Tip{Level: LevelInfo, Text: "None of the deals in view report a surface."})
		}
	}

	if len(unmapped) > 0 {
		out = append(out, Tip{
			Level: LevelWarning,
			Text:  fmt.Sprintf("%d region(s) in the data are not assigned to any continent and are never shown: %v.", len(unmapped), unmapped),
		})
	}
	return out
}

func deals(n int) string {
	if n == 1 {
		return "1 deal"
	}
	return fmt.Sprintf("%d deals", n)
}

// scope names the region group by its label, and the year if any.
func scope(v state.View) string {
	q := v.Query
	where := "worldwide"
	if q.Region != "" && q.Region != region.World {
		label := v.RegionLabel
		if label == "" {
			label = q.Region
		}
		where = "in " + label
	}
	if q.Year != nil {
		return fmt.Sprintf("%s in %d", where, *q.Year)
	}
	return where
}

func dominantCrop(records []deal.Record) (deal.CropClass, float64) {
	if len(records) == 0 {
		return deal.CropOther, 0
	}
	counts := make(map[deal.CropClass]int)
	for _, r := range records {
		counts[r.CropClass()]++
	}
	best, n := deal.CropOther, -1
	for _, c := range deal.CropClasses {
		if counts[c] > n {
			best, n = c, counts[c]
		}
	}
	return best, float64(n) / float64(len(records))
}

func negativeShare(records []deal.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var n int
	for _, r := range records {
		if r.NegativeSocialImpact {
			n++
		}
	}
	return float64(n) / float64(len(records))
}

func cropName(c deal.CropClass) string {
	for _, e := range legend.CropLegend() {
		if e.Class == c {
			return e.Label
		}
	}
	return string(c)
}
