// Package deal defines the agricultural land-deal record and its decoding
// from WFS/GeoJSON features.
package deal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature property keys published by the land_matrix GeoServer layers.
const (
	PropID                   = "id"
	PropCountry              = "country"
	PropRegionName           = "region_name"
	PropCountryCode          = "country_code"
	PropSurface              = "surface_ha"
	PropCreatedAt            = "created_at"
	PropCrops                = "crops"
	PropCropOilPalm          = "crop_oil_palm"
	PropCropSoyaBeans        = "crop_soya_beans"
	PropCropSugarCane        = "crop_sugar_cane"
	PropNegativeSocialImpact = "negative_impacts_for_local_communities"
)

// CropClass is the display bucket a deal is coloured and filtered by.
type CropClass string

const (
	CropOilPalm   CropClass = "oilpalm"
	CropSoya      CropClass = "soy"
	CropSugarCane CropClass = "sugarcane"
	CropOther     CropClass = "other"
)

// CropClasses lists the classes in legend order.
var CropClasses = []CropClass{CropOilPalm, CropSoya, CropSugarCane, CropOther}

// ParseCropClass returns the class named s.
func ParseCropClass(s string) (CropClass, bool) {
	for _, c := range CropClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Crops holds the crop flags of a deal. Display only.
type Crops struct {
	OilPalm     bool   `json:"oilPalm"`
	SoyaBeans   bool   `json:"soyaBeans"`
	SugarCane   bool   `json:"sugarCane"`
	Description string `json:"description,omitempty"`
}

// Record is one agricultural land investment.
//
// Surface and Year are optional; nil means the source did not provide a value.
// An empty CountryCode means the code is unknown.
type Record struct {
	ID                   string    `json:"id" validate:"required"`
	Country              string    `json:"country,omitempty"`
	RegionName           string    `json:"regionName"`
	CountryCode          string    `json:"countryCode,omitempty" validate:"omitempty,max=8"`
	Surface              *float64  `json:"surfaceHa,omitempty" validate:"omitempty,gte=0"`
	Year                 *int      `json:"createdYear,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Crops                Crops     `json:"crops"`
	NegativeSocialImpact bool      `json:"negativeSocialImpact"`
	Location             orb.Point `json:"location"`
}

// CropClass returns the colour bucket of the deal. The first set flag wins in
// the order oil palm, soya beans, sugar cane.
func (r Record) CropClass() CropClass {
	switch {
	case r.Crops.OilPalm:
		return CropOilPalm
	case r.Crops.SoyaBeans:
		return CropSoya
	case r.Crops.SugarCane:
		return CropSugarCane
	}
	return CropOther
}

// HasCrop reports whether the deal grows crop c. Each flag is checked on its
// own, so a deal with several flags matches each of them. CropOther matches
// deals with no flag set.
func (r Record) HasCrop(c CropClass) bool {
	switch c {
	case CropOilPalm:
		return r.Crops.OilPalm
	case CropSoya:
		return r.Crops.SoyaBeans
	case CropSugarCane:
		return r.Crops.SugarCane
	case CropOther:
		return !r.Crops.OilPalm && !r.Crops.SoyaBeans && !r.Crops.SugarCane
	}
	return false
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the record invariants: an ID, a non-negative surface and a
// plausible year.
func (r Record) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("deal %q: %w", r.ID, err)
	}
	return nil
}

// Float returns a pointer to v, for building records by hand.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building records by hand.
func Int(v int) *int { return &v }

// FromFeature decodes a GeoJSON feature into a Record. The feature ID is used
// when the properties carry no id. The record is not validated.
func FromFeature(f *geojson.Feature) (Record, error) {
	if f == nil {
		return Record{}, fmt.Errorf("nil feature")
	}
	p := f.Properties

	r := Record{
		ID:          stringProp(p, PropID),
		Country:     strings.TrimSpace(p.MustString(PropCountry, "")),
		RegionName:  strings.TrimSpace(p.MustString(PropRegionName, "")),
		CountryCode: strings.ToUpper(strings.TrimSpace(p.MustString(PropCountryCode, ""))),
		Crops: Crops{
			OilPalm:     p.MustBool(PropCropOilPalm, false),
			SoyaBeans:   p.MustBool(PropCropSoyaBeans, false),
			SugarCane:   p.MustBool(PropCropSugarCane, false),
			Description: p.MustString(PropCrops, ""),
		},
		NegativeSocialImpact: p.MustBool(PropNegativeSocialImpact, false),
	}
	if r.ID == "" && f.ID != nil {
		r.ID = fmt.Sprint(f.ID)
	}

	surface, err := floatProp(p, PropSurface)
	if err != nil {
		return Record{}, fmt.Errorf("deal %q: %w", r.ID, err)
	}
	r.Surface = surface

	year, err := yearProp(p, PropCreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("deal %q: %w", r.ID, err)
	}
	r.Year = year

	if f.Geometry != nil {
		if pt, ok := f.Geometry.(orb.Point); ok {
			r.Location = pt
		} else {
			r.Location = f.Geometry.Bound().Center()
		}
	}
	return r, nil
}

// Feature encodes the record back into a GeoJSON point feature for the map
// rendering side.
func (r Record) Feature() *geojson.Feature {
	f := geojson.NewFeature(r.Location)
	f.ID = r.ID
	f.Properties[PropID] = r.ID
	f.Properties[PropCountry] = r.Country
	f.Properties[PropRegionName] = r.RegionName
	f.Properties[PropCountryCode] = r.CountryCode
	if r.Surface != nil {
		f.Properties[PropSurface] = *r.Surface
	}
	if r.Year != nil {
		f.Properties[PropCreatedAt] = *r.Year
	}
	f.Properties[PropCrops] = r.Crops.Description
	f.Properties[PropCropOilPalm] = r.Crops.OilPalm
	f.Properties[PropCropSoyaBeans] = r.Crops.SoyaBeans
	f.Properties[PropCropSugarCane] = r.Crops.SugarCane
	f.Properties[PropNegativeSocialImpact] = r.NegativeSocialImpact
	f.Properties["crop_class"] = string(r.CropClass())
	return f
}

func stringProp(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func floatProp(p geojson.Properties, key string) (*float64, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

// yearProp accepts a bare year (2020), a numeric string ("2020") or a date
// string starting with the year ("2020-03-01").
func yearProp(p geojson.Properties, key string) (*int, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case float64:
		y := int(v)
		return &y, nil
	case int:
		return &v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		if len(s) > 4 {
			s = s[:4]
		}
		y, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &y, nil
	default:
		return nil, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}
