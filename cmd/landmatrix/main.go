package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/db"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/loader"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/server"
	"github.com/joeblew999/plat-landmatrix/internal/state"
	"github.com/joeblew999/plat-landmatrix/internal/tips"
)

// Options defines all CLI flags and env vars for the server.
// Flags: --host, --port, --data-dir, --web-dir, --geoserver, --sources, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_GEOSERVER, ...
type Options struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir     string `doc:"Directory for layers, source files and the DuckDB snapshot" default:".data"`
	WebDir      string `doc:"Path to web/ directory" default:"web"`
	GeoServer   string `doc:"GeoServer workspace URL" default:"http://localhost:8080/geoserver/land_matrix"`
	Sources     string `doc:"Comma separated deal sources (wfs:<typeName>, file:<name>, duckdb)" default:"wfs:land_matrix:deals"`
	Regions     string `doc:"YAML file mapping region groups to data regions; built-in continents when empty"`
	MaxFeatures int    `doc:"Cap on features per WFS request, 0 for none" default:"0"`
	SessionIdle string `doc:"Idle time after which a viewer session is dropped, e.g. 30m" default:"30m"`
	NoDB        bool   `doc:"Disable the DuckDB snapshot store"`
	Debug       bool   `doc:"Development logging"`
	LoadOnStart bool   `doc:"Load deals before serving" default:"true"`
}

func newLogger(opts *Options) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if opts.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newServer(opts *Options, logger *zap.Logger) (*server.Server, error) {
	sources, err := loader.ParseSources(opts.Sources)
	if err != nil {
		return nil, err
	}
	idle, err := time.ParseDuration(opts.SessionIdle)
	if err != nil {
		return nil, fmt.Errorf("session idle: %w", err)
	}
	return server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		WebDir:       opts.WebDir,
		GeoServerURL: opts.GeoServer,
		Sources:      sources,
		RegionsFile:  opts.Regions,
		MaxFeatures:  opts.MaxFeatures,
		SessionIdle:  idle,
		NoDB:         opts.NoDB,
		Logger:       logger,
	})
}

func fatal(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	logger.Sync()
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := newLogger(opts)
		srv, err := newServer(opts, logger)
		if err != nil {
			fatal(logger, "creating server", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		hooks.OnStart(func() {
			if opts.LoadOnStart {
				if err := srv.Load(ctx); err != nil {
					logger.Warn("initial deal load failed, serving an empty collection", zap.Error(err))
				}
			}
			go srv.Run(ctx)

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			logger.Info("plat-landmatrix API server starting",
				zap.String("url", baseURL),
				zap.String("data_dir", opts.DataDir),
				zap.String("viewer", baseURL+"/viewer"),
				zap.String("docs", baseURL+"/docs"),
				zap.String("openapi", baseURL+"/openapi.json"))

			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(logger, "server error", err)
			}
		})

		hooks.OnStop(func() {
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpSrv.Shutdown(shutdownCtx)
			srv.Close()
			logger.Sync()
		})
	})

	cli.Root().Use = "landmatrix"
	cli.Root().Short = "Agricultural land deals map server"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), importCommand(), summaryCommand())
	cli.Run()
}

// specCommand exports the OpenAPI spec (JSON by default, --yaml for YAML).
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv, err := newServer(opts, zap.NewNop())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// importCommand loads deals from the configured sources and snapshots them
// into DuckDB so the server can start offline.
func importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Fetch deals from the configured sources into the DuckDB snapshot",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			defer logger.Sync()

			sources, err := loader.ParseSources(opts.Sources)
			if err != nil {
				fatal(logger, "parsing sources", err)
			}
			for _, src := range sources {
				if src.Kind == loader.KindDuckDB {
					fatal(logger, "import", errors.New("cannot import from the snapshot into itself"))
				}
			}

			opts.NoDB = false
			srv, err := newServer(opts, logger)
			if err != nil {
				fatal(logger, "creating server", err)
			}
			defer srv.Close()

			svc := srv.Services()
			if svc.DB == nil {
				fatal(logger, "import", errors.New("duckdb not available"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := svc.Loader.Load(ctx, sources)
			if err != nil {
				fatal(logger, "loading deals", err)
			}
			if err := db.SaveDeals(ctx, svc.DB, res.Records); err != nil {
				fatal(logger, "saving snapshot", err)
			}
			fmt.Printf("Imported %d deals from %s (%d skipped)\n", len(res.Records), res.Source, res.Dropped)
			if len(res.Unmapped) > 0 {
				fmt.Printf("Regions outside every group: %v\n", res.Unmapped)
			}
		}),
	}
}

// summaryCommand prints the legend maximum, top countries and tips of a
// selection, computed over the configured sources.
func summaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the legend maximum and top countries for a selection",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			defer logger.Sync()

			srv, err := newServer(opts, logger)
			if err != nil {
				fatal(logger, "creating server", err)
			}
			defer srv.Close()

			if err := srv.Load(cmd.Context()); err != nil {
				fatal(logger, "loading deals", err)
			}

			year, _ := cmd.Flags().GetString("year")
			reg, _ := cmd.Flags().GetString("region")
			crop, _ := cmd.Flags().GetString("crop")
			top, _ := cmd.Flags().GetInt("top")

			svc := srv.Services()
			q, err := state.ParseQuery(state.QueryParams{Year: year, Region: reg, Crop: crop}, svc.Deals.Regions())
			if err != nil {
				fatal(logger, "parsing selection", err)
			}
			var v state.View
			svc.Deals.Read(func(records []deal.Record, regions *region.Table) {
				v = state.Compute(records, regions, q, state.Options{Scale: state.DefaultOptions.Scale, ChartLimit: top})
			})

			fmt.Printf("Visible deals: %d\n", v.Count)
			fmt.Printf("Largest surface: %s (radius %.1f px)\n", v.Label, v.Radius)
			ds := chart.NewDataset(v.Bars)
			for i, label := range ds.Labels {
				fmt.Printf("  %-4s %14.0f ha\n", label, ds.Values[i])
			}
			for _, t := range tips.For(v, svc.Deals.Status().Unmapped) {
				fmt.Printf("[%s] %s\n", t.Level, t.Text)
			}
		}),
	}
	cmd.Flags().String("year", "", "Creation year")
	cmd.Flags().String("region", region.World, "Region group key")
	cmd.Flags().String("crop", "", "Crop class (oilpalm, soy, sugarcane, other)")
	cmd.Flags().Int("top", 10, "Number of countries to list")
	return cmd
}
