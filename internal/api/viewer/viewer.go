// Package viewer contains the Datastar SSE handlers behind the map page: one
// viewer session per browser, whose selection drives the legend, chart and
// tips fragments.
package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/humastar"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
	"github.com/joeblew999/plat-landmatrix/internal/state"
	"github.com/joeblew999/plat-landmatrix/internal/templates"
	"github.com/joeblew999/plat-landmatrix/internal/tips"
)

// Fragment targets on the map page.
const (
	SelectorLegend  = "#legend"
	SelectorChart   = "#chart"
	SelectorTips    = "#tips"
	SelectorRegions = "#region-select"
	SelectorEvents  = "#events"
)

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	sessions *state.Sessions
	deals    *service.DealService
	bus      *service.EventBus
	opts     state.Options
	logger   *zap.Logger
}

// NewHandler creates a viewer handler.
func NewHandler(sessions *state.Sessions, deals *service.DealService, bus *service.EventBus,
	renderer *templates.Renderer, opts state.Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		deals:    deals,
		bus:      bus,
		opts:     opts,
		logger:   logger.Named("viewer"),
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/sessions", h.CreateSession, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/selection", h.Select, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/reset", h.Reset, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags("viewer"))
}

// CreateSession starts a viewer session and initialises the page signals,
// the region options and the fragments.
func (h *Handler) CreateSession(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	v := h.sessions.New()
	st := h.deals.Status()
	h.logger.Debug("session created", zap.String("session", v.ID), zap.Int("sessions", h.sessions.Len()))

	return h.Stream(func(sse humastar.SSE) {
		signals := map[string]any{
			"sessionid": v.ID,
			"year":      "",
			"region":    region.World,
			"crop":      "",
			"bbox":      "",
		}
		if st.MinYear != nil && st.MaxYear != nil {
			signals["minyear"] = *st.MinYear
			signals["maxyear"] = *st.MaxYear
		}
		sse.Signals(signals)
		sse.Patch(h.regionOptions(region.World), SelectorRegions)
		h.patchView(sse, v.View(), st.Unmapped)
		h.openEvents(sse, v.ID)
	}), nil
}

// Select applies the selection signals to the session and patches the
// fragments. Invalid selections leave the session unchanged and send an
// error signal.
func (h *Handler) Select(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		v, err := h.viewer(sse, signals)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		q, err := queryFromSignals(signals, h.deals.Regions())
		if err != nil {
			sse.Error(err.Error())
			return
		}
		view, err := v.Apply(q)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		h.patchView(sse, view, h.deals.Status().Unmapped)
	}), nil
}

// Reset clears the session's filters.
func (h *Handler) Reset(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		v, err := h.viewer(sse, signals)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		view := v.Reset()
		sse.Signals(map[string]any{"year": "", "region": region.World, "crop": "", "bbox": ""})
		sse.Patch(h.regionOptions(region.World), SelectorRegions)
		h.patchView(sse, view, h.deals.Status().Unmapped)
	}), nil
}

type EventsInput struct {
	SessionID string `query:"sessionid" required:"true" doc:"Viewer session ID"`
}

// Events streams changes for one session until the client disconnects or the
// session is pruned or replaced: recomputed views (including those after a
// deal reload) are patched, other resource changes are dispatched as a
// resource-changed DOM event.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	v, ok := h.sessions.Get(input.SessionID)
	if !ok {
		return nil, huma.Error404NotFound("unknown session")
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if cur, ok := h.sessions.Get(v.ID); !ok || cur != v {
						h.logger.Debug("session gone, closing events", zap.String("session", v.ID))
						return
					}
					switch ev.Resource {
					case service.ResourceSelection:
						if ev.ID != v.ID {
							continue
						}
						if view, ok := ev.Payload.(state.View); ok {
							h.patchView(sse, view, h.deals.Status().Unmapped)
						}
						continue
					}
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}

// viewer returns the session named by the sessionid signal. Expired
// sessions are replaced and the new ID is sent back.
func (h *Handler) viewer(sse humastar.SSE, signals humastar.Signals) (*state.Viewer, error) {
	id := signals.String("sessionid")
	if id == "" {
		return nil, errors.New("missing session id")
	}
	v := h.sessions.GetOrNew(id)
	if v.ID != id {
		sse.Signals(map[string]any{"sessionid": v.ID})
		h.openEvents(sse, v.ID)
	}
	return v, nil
}

// openEvents makes the page open the events stream of session id, replacing
// any stream of an earlier session.
func (h *Handler) openEvents(sse humastar.SSE, id string) {
	html, err := h.Renderer.Render("events", id)
	if err != nil {
		h.logger.Error("rendering fragment", zap.String("template", "events"), zap.Error(err))
		return
	}
	sse.Patch(html, SelectorEvents)
}

// queryFromSignals reads year, region, crop and bbox signals.
func queryFromSignals(s humastar.Signals, regions *region.Table) (state.Query, error) {
	year := ""
	y, err := s.OptionalInt("year")
	if err != nil {
		return state.Query{}, fmt.Errorf("%w: %w", state.ErrInvalidQuery, err)
	}
	if y != nil {
		year = fmt.Sprint(*y)
	}
	return state.ParseQuery(state.QueryParams{
		Year:   year,
		Region: s.String("region"),
		BBox:   s.String("bbox"),
		Crop:   s.String("crop"),
	}, regions)
}

func (h *Handler) regionOptions(selected string) string {
	groups := h.deals.Regions().Groups()
	opts := make([]humastar.SelectOptionData, 0, len(groups))
	for _, g := range groups {
		opts = append(opts, humastar.SelectOptionData{Value: g.Key, Label: g.Label, Selected: g.Key == selected})
	}
	return h.RenderSelect("Region", opts)
}

// legendData feeds the legend fragment.
type legendData struct {
	Radius   float64
	Diameter float64
	Label    string
	Key      []legend.KeyEntry
	Crops    []legend.CropEntry
}

// chartData feeds the chart fragment.
type chartData struct {
	Bars  []chart.Bar
	Total float64
	Max   float64
}

// patchView sends the legend, chart and tips fragments plus the summary
// signals of view.
func (h *Handler) patchView(sse humastar.SSE, view state.View, unmapped []string) {
	ds := chart.NewDataset(view.Bars)
	cd := chartData{Bars: view.Bars, Total: ds.Total}
	if len(view.Bars) > 0 {
		cd.Max = view.Bars[0].Hectares
	}

	fragments := []struct {
		tmpl, selector string
		data           any
	}{
		{"legend", SelectorLegend, legendData{
			Radius:   view.Radius,
			Diameter: 2 * view.Radius,
			Label:    view.Label,
			Key:      h.opts.Scale.Key(legend.DefaultKey),
			Crops:    legend.CropLegend(),
		}},
		{"chart", SelectorChart, cd},
		{"tips", SelectorTips, tips.For(view, unmapped)},
	}
	for _, f := range fragments {
		html, err := h.Renderer.Render(f.tmpl, f.data)
		if err != nil {
			h.logger.Error("rendering fragment", zap.String("template", f.tmpl), zap.Error(err))
			continue
		}
		sse.Patch(html, f.selector)
	}

	signals := map[string]any{
		"visiblecount": view.Count,
		"maxsurface":   nil,
		"radius":       view.Radius,
		"label":        view.Label,
		"error":        "",
	}
	if view.MaxSurface.Valid {
		signals["maxsurface"] = view.MaxSurface.Hectares
	}
	sse.Signals(signals)
}
