// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-landmatrix/internal/db"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/humastar"
	"github.com/joeblew999/plat-landmatrix/internal/loader"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
	"github.com/joeblew999/plat-landmatrix/internal/state"
	"github.com/joeblew999/plat-landmatrix/internal/templates"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Deals   *service.DealService
	Layers  *service.LayerService
	Sources *service.SourceService
	Loader  *loader.Loader
	// DealSources is what a reload reads when the request names none.
	DealSources []loader.Source
	// DB is the snapshot database; nil when DuckDB is unavailable.
	DB      *sql.DB
	Options state.Options
	// Renderer renders popup HTML for deal details; optional.
	Renderer *templates.Renderer
	Logger   *zap.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"deals"`
}

// LayerBody is a layer plus its hypermedia actions.
type LayerBody struct {
	service.LayerConfig
}

var layerActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/layers/%s", Method: "PUT", Title: "Update layer"},
	{Rel: "delete", Pattern: "/api/v1/layers/%s", Method: "DELETE", Title: "Delete layer"},
}

// Actions implements humastar.Actor.
func (b LayerBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, layerActions)
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body []service.LayerConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Deals   int    `json:"deals" doc:"Number of resident deals"`
}

type ReloadInput struct {
	Source string `query:"source" doc:"Comma separated deal sources; defaults to the configured ones" example:"wfs:land_matrix:deals"`
}

type ReloadBody struct {
	Source   string   `json:"source" doc:"Sources that were read"`
	Count    int      `json:"count" doc:"Number of deals loaded"`
	Dropped  int      `json:"dropped" doc:"Number of invalid or duplicate deals skipped"`
	Unmapped []string `json:"unmapped" doc:"Region names not covered by any group"`
	Snapshot bool     `json:"snapshot" doc:"Whether the deals were saved to DuckDB"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc    *Services
	logger *zap.Logger
}

func NewAPIHandler(svc *Services) *APIHandler {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if svc.Options.Scale.Factor == 0 {
		svc.Options = state.DefaultOptions
	}
	return &APIHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers every REST route of svc on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer CRUD routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

// RegisterSources registers source listing and reload routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Post(api, "/api/v1/reload", h.Reload, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	body := HealthBody{Status: "ok", Version: "1.0.0"}
	if h.svc.Deals != nil {
		h.svc.Deals.Read(func(records []deal.Record, _ *region.Table) { body.Deals = len(records) })
	}
	return &struct{ Body HealthBody }{Body: body}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc.Layers == nil {
		return &LayersOutput{Body: []service.LayerConfig{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layers.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.LayerConfig }) (*struct {
	Status int
	Body   LayerBody
}, error) {
	if h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("layer service not available")
	}
	created, err := h.svc.Layers.Create(input.Body)
	if errors.Is(err, service.ErrLayerExists) {
		return nil, huma.Error409Conflict(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("saving layer", err)
	}
	return &struct {
		Status int
		Body   LayerBody
	}{Status: 201, Body: LayerBody{created}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("layer service not available")
	}
	layer, ok := h.svc.Layers.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: LayerBody{layer}}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.LayerConfig
}) (*LayerOutput, error) {
	if h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("layer service not available")
	}
	updated, err := h.svc.Layers.Update(input.ID, input.Body)
	if errors.Is(err, service.ErrLayerNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("saving layer", err)
	}
	return &LayerOutput{Body: LayerBody{updated}}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("layer service not available")
	}
	err := h.svc.Layers.Delete(input.ID)
	if errors.Is(err, service.ErrLayerNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("saving layers", err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		h.logger.Warn("listing sources", zap.Error(err))
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

// Reload re-reads the deal sources and swaps the resident collection. Loads
// that did not come from the snapshot itself are saved to DuckDB.
func (h *APIHandler) Reload(ctx context.Context, input *ReloadInput) (*struct{ Body ReloadBody }, error) {
	if h.svc.Loader == nil || h.svc.Deals == nil {
		return nil, huma.Error503ServiceUnavailable("loader not available")
	}
	sources := h.svc.DealSources
	if input.Source != "" {
		parsed, err := loader.ParseSources(input.Source)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		sources = parsed
	}

	res, err := h.svc.Loader.Reload(ctx, h.svc.Deals, sources)
	if err != nil {
		h.logger.Error("reloading deals", zap.Error(err))
		return nil, huma.Error502BadGateway("loading deals failed", err)
	}

	body := ReloadBody{
		Source:   res.Source,
		Count:    len(res.Records),
		Dropped:  res.Dropped,
		Unmapped: res.Unmapped,
	}
	if body.Unmapped == nil {
		body.Unmapped = []string{}
	}
	if h.svc.DB != nil && !fromSnapshot(sources) {
		if err := db.SaveDeals(ctx, h.svc.DB, res.Records); err != nil {
			h.logger.Warn("saving deal snapshot", zap.Error(err))
		} else {
			body.Snapshot = true
		}
	}
	return &struct{ Body ReloadBody }{Body: body}, nil
}

func fromSnapshot(sources []loader.Source) bool {
	for _, s := range sources {
		if s.Kind == loader.KindDuckDB {
			return true
		}
	}
	return false
}
