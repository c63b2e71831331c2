// Package service contains the stateful services of the land-deal map: the
// resident deal collection, the map layer catalogue, deal source files and
// the change event bus.
package service

// Layer kinds understood by the map front-end.
const (
	KindTile = "tile" // XYZ raster tiles (base maps)
	KindWMS  = "wms"  // server-rendered WMS image
	KindWFS  = "wfs"  // GeoJSON features fetched over WFS
	KindData = "data" // deals served by this API
)

// LayerConfig describes one entry of the map's layer switcher.
// Huma reads the tags for OpenAPI and validation.
type LayerConfig struct {
	ID             string       `json:"id,omitempty" doc:"Unique layer identifier" example:"deals"`
	Name           string       `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Agricultural investments"`
	Kind           string       `json:"kind" required:"true" enum:"tile,wms,wfs,data" doc:"Layer kind" example:"wms"`
	Base           bool         `json:"base" doc:"Base map (mutually exclusive) rather than overlay"`
	URL            string       `json:"url" required:"true" doc:"Tile template, WMS/WFS endpoint or API path" example:"http://localhost:8080/geoserver/land_matrix/wms"`
	ServiceLayer   string       `json:"serviceLayer,omitempty" doc:"WMS LAYERS or WFS typeName" example:"land_matrix:deals_by_country"`
	Attribution    string       `json:"attribution,omitempty" doc:"Attribution text" example:"© OpenStreetMap"`
	DefaultVisible bool         `json:"defaultVisible" default:"true" doc:"Whether layer is visible by default"`
	Fill           string       `json:"fill,omitempty" doc:"Fill color (CSS)" example:"rgba(231, 111, 81, 0.6)"`
	Stroke         string       `json:"stroke,omitempty" doc:"Stroke color (CSS)" example:"#e76f51"`
	Opacity        float64      `json:"opacity,omitempty" minimum:"0" maximum:"1" default:"0.7" doc:"Layer opacity (0-1)"`
	ZIndex         int          `json:"zIndex" doc:"Draw order, higher on top"`
	Legend         []LegendItem `json:"legend,omitempty" doc:"Legend entries for this layer"`
}

// LegendItem defines a legend entry.
type LegendItem struct {
	Label string `json:"label" doc:"Legend label"`
	Color string `json:"color" doc:"Legend color (CSS)"`
}

// SourceFile is a deal data file in the sources directory.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"deals.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}
