package legend

import (
	"strconv"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
)

const missing = "—"

// Popup is the text shown when a deal circle is clicked.
type Popup struct {
	Title        string `json:"title"`
	Country      string `json:"country"`
	Year         string `json:"year"`
	Surface      string `json:"surface"`
	Crops        string `json:"crops"`
	SocialImpact string `json:"socialImpact"`
}

// PopupFor fills the popup fields of a deal, using a dash for missing values.
func PopupFor(r deal.Record) Popup {
	p := Popup{
		Title:        "Deal #" + r.ID,
		Country:      orMissing(r.Country),
		Year:         missing,
		Surface:      missing,
		Crops:        orMissing(r.Crops.Description),
		SocialImpact: "No",
	}
	if r.Year != nil {
		p.Year = strconv.Itoa(*r.Year)
	}
	// A zero surface is shown as missing, like an absent one.
	if r.Surface != nil && *r.Surface != 0 {
		p.Surface = Hectares(*r.Surface)
	}
	if r.NegativeSocialImpact {
		p.SocialImpact = "Yes"
	}
	return p
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}
