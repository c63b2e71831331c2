package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-landmatrix/internal/service"
)

type InfoHandler struct {
	dataDir string
	dbOK    bool
	deals   *service.DealService
}

func NewInfoHandler(dataDir string, dbOK bool, deals *service.DealService) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, deals: deals}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string          `json:"name" doc:"Service name"`
	Version  string          `json:"version" doc:"Service version"`
	DataDir  string          `json:"data_dir" doc:"Data directory path"`
	DB       bool            `json:"db" doc:"Whether the DuckDB snapshot store is available"`
	Deals    *service.Status `json:"deals,omitempty" doc:"Resident deal collection"`
	Features []string        `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-landmatrix",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Features: []string{"wfs", "geojson", "legend", "chart", "tips", "datastar"},
	}
	if h.dbOK {
		body.Features = append(body.Features, "duckdb")
	}
	if h.deals != nil {
		st := h.deals.Status()
		body.Deals = &st
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
