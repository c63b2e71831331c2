package deal

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeature = `{
  "type": "Feature",
  "id": "deals.12",
  "geometry": {"type": "Point", "coordinates": [30.2, 12.5]},
  "properties": {
    "id": 1042,
    "country": "Sudan",
    "region_name": "Africa",
    "country_code": "sdn",
    "surface_ha": 200,
    "created_at": "2020-05-01",
    "crops": "Sugar cane",
    "crop_sugar_cane": true,
    "negative_impacts_for_local_communities": true
  }
}`

func TestFromFeature(t *testing.T) {
	f, err := geojson.UnmarshalFeature([]byte(sampleFeature))
	require.NoError(t, err)

	r, err := FromFeature(f)
	require.NoError(t, err)

	assert.Equal(t, "1042", r.ID)
	assert.Equal(t, "Sudan", r.Country)
	assert.Equal(t, "Africa", r.RegionName)
	assert.Equal(t, "SDN", r.CountryCode)
	require.NotNil(t, r.Surface)
	assert.Equal(t, 200.0, *r.Surface)
	require.NotNil(t, r.Year)
	assert.Equal(t, 2020, *r.Year)
	assert.True(t, r.Crops.SugarCane)
	assert.True(t, r.NegativeSocialImpact)
	assert.Equal(t, orb.Point{30.2, 12.5}, r.Location)
	assert.Equal(t, CropSugarCane, r.CropClass())
	assert.NoError(t, r.Validate())
}

func TestFromFeatureMissingValues(t *testing.T) {
	f := geojson.NewFeature(orb.Point{1, 2})
	f.ID = "deals.7"
	f.Properties["region_name"] = "Asia"

	r, err := FromFeature(f)
	require.NoError(t, err)
	assert.Equal(t, "deals.7", r.ID)
	assert.Nil(t, r.Surface)
	assert.Nil(t, r.Year)
	assert.Empty(t, r.CountryCode)
	assert.Equal(t, CropOther, r.CropClass())
}

func TestFromFeatureBadSurface(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["id"] = "x"
	f.Properties["surface_ha"] = "lots"

	_, err := FromFeature(f)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"ok", Record{ID: "1", Surface: Float(0), Year: Int(2011)}, false},
		{"no optional values", Record{ID: "1"}, false},
		{"missing id", Record{Surface: Float(3)}, true},
		{"negative surface", Record{ID: "1", Surface: Float(-1)}, true},
		{"implausible year", Record{ID: "1", Year: Int(20200)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCropClassPrecedence(t *testing.T) {
	r := Record{Crops: Crops{SoyaBeans: true, SugarCane: true}}
	assert.Equal(t, CropSoya, r.CropClass())
	r.Crops.OilPalm = true
	assert.Equal(t, CropOilPalm, r.CropClass())
}

func TestHasCropChecksEachFlag(t *testing.T) {
	r := Record{Crops: Crops{SoyaBeans: true, SugarCane: true}}
	assert.True(t, r.HasCrop(CropSoya))
	assert.True(t, r.HasCrop(CropSugarCane))
	assert.False(t, r.HasCrop(CropOilPalm))
	assert.False(t, r.HasCrop(CropOther))

	assert.True(t, Record{}.HasCrop(CropOther))
	assert.False(t, Record{}.HasCrop("cotton"))
}

func TestFeatureRoundTripKeepsOptionalsAbsent(t *testing.T) {
	r := Record{ID: "9", RegionName: "Asia", Location: orb.Point{3, 4}}
	f := r.Feature()
	_, hasSurface := f.Properties[PropSurface]
	_, hasYear := f.Properties[PropCreatedAt]
	assert.False(t, hasSurface)
	assert.False(t, hasYear)
	assert.Equal(t, "other", f.Properties["crop_class"])
}

func TestParseCropClass(t *testing.T) {
	c, ok := ParseCropClass("soy")
	assert.True(t, ok)
	assert.Equal(t, CropSoya, c)
	_, ok = ParseCropClass("maize")
	assert.False(t, ok)
}
