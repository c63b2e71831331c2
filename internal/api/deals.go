package api

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
	"github.com/joeblew999/plat-landmatrix/internal/humastar"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/state"
	"github.com/joeblew999/plat-landmatrix/internal/tips"
)

// SelectionInput carries the deal selection as query parameters.
type SelectionInput struct {
	Year   string `query:"year" doc:"Creation year; empty for every year" example:"2012"`
	Region string `query:"region" doc:"Region group key, or World" example:"Africa"`
	BBox   string `query:"bbox" doc:"Viewport as minLon,minLat,maxLon,maxLat; narrows the legend maximum" example:"-20,-35,55,38"`
	Crop   string `query:"crop" doc:"Crop class: oilpalm, soy, sugarcane or other" example:"soy"`
}

type DealsInput struct {
	SelectionInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Page size"`
}

type DealIDInput struct {
	ID string `path:"id" doc:"Deal ID" example:"1024"`
}

// DealDetail is one deal with its map rendering attributes.
type DealDetail struct {
	deal.Record
	CropClass deal.CropClass `json:"cropClass" doc:"Colour bucket"`
	Color     string         `json:"color" doc:"Circle fill colour"`
	Radius    float64        `json:"radius" doc:"Circle radius in pixels"`
	Popup     legend.Popup   `json:"popup" doc:"Popup text"`
	PopupHTML string         `json:"popupHtml,omitempty" doc:"Popup rendered as an HTML fragment"`
}

// LegendBody is the size legend of a selection.
type LegendBody struct {
	Count      int                `json:"count" doc:"Number of visible deals"`
	MaxSurface *float64           `json:"maxSurface" doc:"Largest surface in view; null when no deal in view has one"`
	Label      string             `json:"label" doc:"Formatted maximum, or No data" example:"250,000 ha"`
	Radius     float64            `json:"radius" doc:"Circle radius of the maximum in pixels"`
	Key        []legend.KeyEntry  `json:"key" doc:"Static reference circles"`
	Crops      []legend.CropEntry `json:"crops" doc:"Crop colour swatches"`
}

// ChartBody is the surface-by-country chart of a selection.
type ChartBody struct {
	ByCountry map[string]float64 `json:"byCountry" doc:"Summed surface per country code; N/A collects unknown codes"`
	Bars      []chart.Bar        `json:"bars" doc:"Largest countries first"`
	Dataset   chart.Dataset      `json:"dataset" doc:"Bars flattened for the chart widget"`
	Centroids []Centroid         `json:"centroids" doc:"Per-country circle sizes for the centroid layer, by code"`
}

// Centroid sizes one country's centroid circle, by deal count and by surface.
type Centroid struct {
	Code          string  `json:"code" example:"BRA"`
	Deals         int     `json:"deals" doc:"Visible deals in the country"`
	Hectares      float64 `json:"hectares" doc:"Summed surface"`
	CountRadius   float64 `json:"countRadius" doc:"Radius from sqrt(deals)"`
	SurfaceRadius float64 `json:"surfaceRadius" doc:"Radius from sqrt(hectares)"`
}

// NewCentroids sizes the country centroids of a view.
func NewCentroids(v state.View) []Centroid {
	counts := make(map[string]int, len(v.ByCountry))
	for _, r := range v.Visible {
		code := r.CountryCode
		if code == "" {
			code = filter.UnknownCountryCode
		}
		counts[code]++
	}
	out := make([]Centroid, 0, len(v.ByCountry))
	for _, code := range slices.Sorted(maps.Keys(v.ByCountry)) {
		ha := v.ByCountry[code]
		out = append(out, Centroid{
			Code:          code,
			Deals:         counts[code],
			Hectares:      ha,
			CountRadius:   legend.CentroidCountScale.Radius(float64(counts[code])),
			SurfaceRadius: legend.CentroidSurfaceScale.Radius(ha),
		})
	}
	return out
}

type RawOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterDeals registers deal, legend, chart and tips routes.
func (h *APIHandler) RegisterDeals(api huma.API) {
	huma.Get(api, "/api/v1/regions", h.GetRegions, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/deals", h.GetDeals, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/deals/geojson", h.GetDealsGeoJSON, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/deals/{id}", h.GetDeal, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/chart", h.GetChart, huma.OperationTags("deals"))
	huma.Get(api, "/api/v1/tips", h.GetTips, huma.OperationTags("deals"))
}

// view parses the selection and computes its view over the resident deals.
func (h *APIHandler) view(in SelectionInput) (state.View, error) {
	if h.svc.Deals == nil {
		return state.View{}, huma.Error503ServiceUnavailable("deals not loaded")
	}
	q, err := state.ParseQuery(state.QueryParams{
		Year: in.Year, Region: in.Region, BBox: in.BBox, Crop: in.Crop,
	}, h.svc.Deals.Regions())
	if err != nil {
		return state.View{}, huma.Error400BadRequest(err.Error())
	}
	var v state.View
	h.svc.Deals.Read(func(records []deal.Record, regions *region.Table) {
		v = state.Compute(records, regions, q, h.svc.Options)
	})
	return v, nil
}

func (h *APIHandler) GetRegions(ctx context.Context, input *struct{}) (*struct{ Body []region.Group }, error) {
	regions := region.Default()
	if h.svc.Deals != nil {
		regions = h.svc.Deals.Regions()
	}
	return &struct{ Body []region.Group }{Body: regions.Groups()}, nil
}

func (h *APIHandler) GetDeals(ctx context.Context, input *DealsInput) (*struct {
	Body humastar.PageBody[deal.Record]
}, error) {
	v, err := h.view(input.SelectionInput)
	if err != nil {
		return nil, err
	}
	return &struct {
		Body humastar.PageBody[deal.Record]
	}{Body: humastar.Page(v.Visible, input.Offset, input.Limit)}, nil
}

// GetDealsGeoJSON returns the visible deals as a FeatureCollection for the
// map's deal layer.
func (h *APIHandler) GetDealsGeoJSON(ctx context.Context, input *SelectionInput) (*RawOutput, error) {
	v, err := h.view(*input)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, r := range v.Visible {
		f := r.Feature()
		f.Properties["color"] = legend.CropColor(r.CropClass())
		f.Properties["radius"] = dealRadius(h.svc.Options.Scale, r)
		fc.Append(f)
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding features", err)
	}
	return &RawOutput{ContentType: "application/geo+json", Body: b}, nil
}

func (h *APIHandler) GetDeal(ctx context.Context, input *DealIDInput) (*struct{ Body DealDetail }, error) {
	if h.svc.Deals == nil {
		return nil, huma.Error503ServiceUnavailable("deals not loaded")
	}
	var (
		found deal.Record
		ok    bool
	)
	h.svc.Deals.Read(func(records []deal.Record, _ *region.Table) {
		for _, r := range records {
			if r.ID == input.ID {
				found, ok = r, true
				return
			}
		}
	})
	if !ok {
		return nil, huma.Error404NotFound("deal not found")
	}
	detail := DealDetail{
		Record:    found,
		CropClass: found.CropClass(),
		Color:     legend.CropColor(found.CropClass()),
		Radius:    dealRadius(h.svc.Options.Scale, found),
		Popup:     legend.PopupFor(found),
	}
	if h.svc.Renderer != nil {
		html, err := h.svc.Renderer.Render("popup", detail.Popup)
		if err != nil {
			h.logger.Warn("rendering popup", zap.String("deal", found.ID), zap.Error(err))
		}
		detail.PopupHTML = html
	}
	return &struct{ Body DealDetail }{Body: detail}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *SelectionInput) (*struct{ Body LegendBody }, error) {
	v, err := h.view(*input)
	if err != nil {
		return nil, err
	}
	return &struct{ Body LegendBody }{Body: NewLegendBody(v, h.svc.Options)}, nil
}

// NewLegendBody shapes a view into the legend payload.
func NewLegendBody(v state.View, opts state.Options) LegendBody {
	body := LegendBody{
		Count:  v.Count,
		Label:  v.Label,
		Radius: v.Radius,
		Key:    opts.Scale.Key(legend.DefaultKey),
		Crops:  legend.CropLegend(),
	}
	if v.MaxSurface.Valid {
		m := v.MaxSurface.Hectares
		body.MaxSurface = &m
	}
	return body
}

func (h *APIHandler) GetChart(ctx context.Context, input *SelectionInput) (*struct{ Body ChartBody }, error) {
	v, err := h.view(*input)
	if err != nil {
		return nil, err
	}
	return &struct{ Body ChartBody }{Body: ChartBody{
		ByCountry: v.ByCountry,
		Bars:      v.Bars,
		Dataset:   chart.NewDataset(v.Bars),
		Centroids: NewCentroids(v),
	}}, nil
}

func (h *APIHandler) GetTips(ctx context.Context, input *SelectionInput) (*struct{ Body []tips.Tip }, error) {
	v, err := h.view(*input)
	if err != nil {
		return nil, err
	}
	return &struct{ Body []tips.Tip }{Body: tips.For(v, h.svc.Deals.Status().Unmapped)}, nil
}

// dealRadius sizes one deal circle; deals without a surface get the minimum.
func dealRadius(s legend.Scale, r deal.Record) float64 {
	if r.Surface == nil {
		return s.MinRadius
	}
	return s.Radius(*r.Surface)
}
