package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
)

var (
	// ErrLayerNotFound is returned for unknown layer IDs.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrLayerExists is returned when creating a layer whose ID is taken.
	ErrLayerExists = errors.New("layer already exists")
)

// LayerService manages the map layer catalogue, persisted as layers.json in
// the data directory.
type LayerService struct {
	dataDir string
	layers  map[string]LayerConfig
	mu      sync.RWMutex
	bus     *EventBus
	logger  *zap.Logger
}

// NewLayerService loads the catalogue from disk. When no catalogue exists yet
// it is seeded with defaults and written back.
func NewLayerService(dataDir string, defaults []LayerConfig, bus *EventBus, logger *zap.Logger) *LayerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LayerService{
		dataDir: dataDir,
		layers:  make(map[string]LayerConfig),
		bus:     bus,
		logger:  logger,
	}
	if s.loadFromDisk() {
		return s
	}
	for _, l := range defaults {
		if l.ID == "" {
			l.ID = generateID(l.Name)
		}
		s.layers[l.ID] = l
	}
	if len(s.layers) > 0 {
		if err := s.saveToDisk(); err != nil {
			logger.Warn("could not persist default layers", zap.Error(err))
		}
	}
	return s
}

// DefaultLayers returns the layers of the land-deal map. geoserverURL is the
// workspace root, e.g. http://localhost:8080/geoserver/land_matrix.
func DefaultLayers(geoserverURL string) []LayerConfig {
	geoserverURL = strings.TrimRight(geoserverURL, "/")
	return []LayerConfig{
		{
			ID: "osm", Name: "OpenStreetMap", Kind: KindTile, Base: true,
			URL:            "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution:    "© OpenStreetMap",
			DefaultVisible: true, Opacity: 1,
		},
		{
			ID: "satellite", Name: "Satellite", Kind: KindTile, Base: true,
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "© Esri", Opacity: 1,
		},
		{
			ID: "deals_by_country", Name: "Deals by country", Kind: KindWMS,
			URL: geoserverURL + "/wms", ServiceLayer: "land_matrix:deals_by_country",
			DefaultVisible: true, Opacity: 0.7, ZIndex: 10,
		},
		{
			ID: "oai", Name: "Agricultural orientation index (OAI)", Kind: KindWFS,
			URL: geoserverURL + "/ows", ServiceLayer: "land_matrix:pays_oai",
			Attribution: "FAOSTAT", Stroke: "#666", Opacity: 0.4, ZIndex: 20,
			Legend: []LegendItem{
				{Label: "> 1.5", Color: legend.OAIColor(deal.Float(2))},
				{Label: "1 – 1.5", Color: legend.OAIColor(deal.Float(1.25))},
				{Label: "0.5 – 1", Color: legend.OAIColor(deal.Float(0.75))},
				{Label: "0 – 0.5", Color: legend.OAIColor(deal.Float(0.25))},
				{Label: legend.NoDataLabel, Color: legend.OAIColor(nil)},
			},
		},
		{
			ID: "deals_centroid", Name: "Deal surface by country centroid", Kind: KindWFS,
			URL: geoserverURL + "/ows", ServiceLayer: "land_matrix:deals_by_country_centroid",
			Fill: "rgba(0, 255, 0, 0.5)", Stroke: "green", Opacity: 0.5, ZIndex: 30,
		},
		{
			ID: "deals", Name: "Agricultural investments", Kind: KindData,
			URL:            "/api/v1/deals/geojson",
			DefaultVisible: true,
			Fill:           "rgba(231, 111, 81, 0.6)", Stroke: "#e76f51", Opacity: 0.6, ZIndex: 100,
			Legend: cropLegendItems(),
		},
	}
}

func cropLegendItems() []LegendItem {
	crops := legend.CropLegend()
	items := make([]LegendItem, len(crops))
	for i, c := range crops {
		items[i] = LegendItem{Label: c.Label, Color: c.Color}
	}
	return items
}

// List returns all layers ordered by draw order, then ID.
func (s *LayerService) List() []LayerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]LayerConfig, 0, len(s.layers))
	for _, l := range s.layers {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ZIndex != result[j].ZIndex {
			return result[i].ZIndex < result[j].ZIndex
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Get returns a layer by ID.
func (s *LayerService) Get(id string) (LayerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[id]
	return layer, ok
}

// Create adds a new layer configuration.
func (s *LayerService) Create(layer LayerConfig) (LayerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if layer.ID == "" {
		layer.ID = generateID(layer.Name)
	}
	if _, exists := s.layers[layer.ID]; exists {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrLayerExists, layer.ID)
	}

	s.layers[layer.ID] = layer
	if err := s.saveToDisk(); err != nil {
		delete(s.layers, layer.ID)
		return LayerConfig{}, err
	}
	s.publish("created", layer.ID)
	return layer, nil
}

// Update replaces a layer configuration by ID.
func (s *LayerService) Update(id string, layer LayerConfig) (LayerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.layers[id]
	if !exists {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}

	layer.ID = id
	s.layers[id] = layer
	if err := s.saveToDisk(); err != nil {
		s.layers[id] = prev
		return LayerConfig{}, err
	}
	s.publish("updated", id)
	return layer, nil
}

// Delete removes a layer by ID.
func (s *LayerService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[id]; !exists {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}

	delete(s.layers, id)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	s.publish("deleted", id)
	return nil
}

func (s *LayerService) publish(action, id string) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceLayers, Action: action, ID: id})
	}
}

func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layers.json")
}

// loadFromDisk reports whether a catalogue was found and parsed.
func (s *LayerService) loadFromDisk() bool {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return false
	}

	var layers map[string]LayerConfig
	if err := json.Unmarshal(data, &layers); err != nil {
		s.logger.Warn("ignoring unreadable layer catalogue",
			zap.String("path", s.configFile()), zap.Error(err))
		return false
	}

	s.layers = layers
	return true
}

func (s *LayerService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	data, err := json.MarshalIndent(s.layers, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
