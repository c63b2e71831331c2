// Package loader builds the resident deal collection from WFS, GeoJSON files
// in the data directory, or the DuckDB snapshot.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-landmatrix/internal/db"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
	"github.com/joeblew999/plat-landmatrix/internal/wfs"
)

// Kind is the type of a deal source.
type Kind string

const (
	KindWFS    Kind = "wfs"
	KindFile   Kind = "file"
	KindDuckDB Kind = "duckdb"
)

var ErrUnknownKind = errors.New("unknown source kind")

// Source names one place to load deals from.
//
//	wfs:land_matrix:deals   WFS feature type
//	file:deals.geojson      GeoJSON file in the sources directory
//	duckdb                  the deals snapshot table
type Source struct {
	Kind Kind
	Name string
}

func (s Source) String() string {
	if s.Name == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Name
}

// ParseSource parses "kind[:name]". Only the first colon separates, so WFS
// type names keep their workspace prefix.
func ParseSource(s string) (Source, error) {
	kind, name, _ := strings.Cut(strings.TrimSpace(s), ":")
	src := Source{Kind: Kind(kind), Name: name}
	switch src.Kind {
	case KindWFS, KindFile:
		if name == "" {
			return Source{}, fmt.Errorf("source %q: missing name", s)
		}
	case KindDuckDB:
	default:
		return Source{}, fmt.Errorf("source %q: %w", s, ErrUnknownKind)
	}
	return src, nil
}

// ParseSources parses a comma separated source list.
func ParseSources(s string) ([]Source, error) {
	var out []Source
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		src, err := ParseSource(part)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, errors.New("no deal sources configured")
	}
	return out, nil
}

// Config configures a Loader.
type Config struct {
	// WFS is the template for WFS sources; TypeName is filled per source.
	WFS        wfs.Config
	HTTPClient *http.Client
	Files      *service.SourceService
	// DB opens the snapshot database on demand.
	DB      func() (*sql.DB, error)
	Regions *region.Table
	Logger  *zap.Logger
}

// Loader loads and validates deal records.
type Loader struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a loader.
func New(cfg Config) *Loader {
	if cfg.Regions == nil {
		cfg.Regions = region.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, logger: logger.Named("loader")}
}

// Result is the outcome of a load.
type Result struct {
	Records  []deal.Record
	Dropped  int
	Unmapped []string
	Source   string
}

// Load reads every source concurrently and concatenates the valid records in
// source order. Records whose ID was already seen are skipped. Any failing
// source fails the whole load.
func (l *Loader) Load(ctx context.Context, sources []Source) (Result, error) {
	if len(sources) == 0 {
		return Result{}, errors.New("no deal sources configured")
	}

	batches := make([][]deal.Record, len(sources))
	dropped := make([]int, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			records, n, err := l.loadOne(ctx, src)
			if err != nil {
				return fmt.Errorf("loading %s: %w", src, err)
			}
			batches[i] = records
			dropped[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	names := make([]string, len(sources))
	res := Result{Records: []deal.Record{}}
	seen := make(map[string]struct{})
	for i, batch := range batches {
		names[i] = sources[i].String()
		res.Dropped += dropped[i]
		for _, r := range batch {
			if _, dup := seen[r.ID]; dup {
				l.logger.Warn("skipping duplicate deal",
					zap.String("id", r.ID), zap.Stringer("source", sources[i]))
				res.Dropped++
				continue
			}
			seen[r.ID] = struct{}{}
			res.Records = append(res.Records, r)
		}
	}
	res.Source = strings.Join(names, ",")

	regionNames := make([]string, len(res.Records))
	for i, r := range res.Records {
		regionNames[i] = r.RegionName
	}
	res.Unmapped = l.cfg.Regions.Unmapped(regionNames)
	if len(res.Unmapped) > 0 {
		l.logger.Warn("deals in regions outside every group are never visible",
			zap.Strings("regions", res.Unmapped))
	}

	l.logger.Info("loaded deals",
		zap.String("source", res.Source),
		zap.Int("records", len(res.Records)),
		zap.Int("dropped", res.Dropped))
	return res, nil
}

func (l *Loader) loadOne(ctx context.Context, src Source) ([]deal.Record, int, error) {
	switch src.Kind {
	case KindWFS:
		cfg := l.cfg.WFS
		cfg.TypeName = src.Name
		fc, err := wfs.New(cfg, l.cfg.HTTPClient, l.logger).FetchFeatures(ctx)
		if err != nil {
			return nil, 0, err
		}
		records, dropped := l.convert(src, fc.Features)
		return records, dropped, nil

	case KindFile:
		if l.cfg.Files == nil {
			return nil, 0, errors.New("no sources directory configured")
		}
		path, err := l.cfg.Files.Path(src.Name)
		if err != nil {
			return nil, 0, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, 0, fmt.Errorf("decoding %s: %w", src.Name, err)
		}
		records, dropped := l.convert(src, fc.Features)
		return records, dropped, nil

	case KindDuckDB:
		if l.cfg.DB == nil {
			return nil, 0, errors.New("no database configured")
		}
		conn, err := l.cfg.DB()
		if err != nil {
			return nil, 0, err
		}
		records, err := db.LoadDeals(ctx, conn)
		if err != nil {
			return nil, 0, err
		}
		return l.validate(src, records)
	}
	return nil, 0, fmt.Errorf("%q: %w", src.Kind, ErrUnknownKind)
}

// convert decodes and validates features, dropping the ones that fail.
func (l *Loader) convert(src Source, features []*geojson.Feature) ([]deal.Record, int) {
	records := make([]deal.Record, 0, len(features))
	dropped := 0
	for i, f := range features {
		r, err := deal.FromFeature(f)
		if err == nil {
			err = r.Validate()
		}
		if err != nil {
			l.logger.Warn("dropping invalid deal",
				zap.Stringer("source", src), zap.Int("feature", i), zap.Error(err))
			dropped++
			continue
		}
		records = append(records, r)
	}
	return records, dropped
}

func (l *Loader) validate(src Source, in []deal.Record) ([]deal.Record, int, error) {
	records := in[:0]
	dropped := 0
	for _, r := range in {
		if err := r.Validate(); err != nil {
			l.logger.Warn("dropping invalid deal", zap.Stringer("source", src), zap.Error(err))
			dropped++
			continue
		}
		records = append(records, r)
	}
	return records, dropped, nil
}

// Reload loads sources and installs the result into deals.
func (l *Loader) Reload(ctx context.Context, deals *service.DealService, sources []Source) (Result, error) {
	res, err := l.Load(ctx, sources)
	if err != nil {
		return res, err
	}
	deals.Replace(res.Records, res.Source)
	return res, nil
}
