package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/quakemap/internal/config"
	"github.com/joeblew999/quakemap/internal/observability"
	"github.com/joeblew999/quakemap/internal/server"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/style"
)

// Options defines all CLI flags and env vars for the quakemap server.
// Flags: --host, --port, --data-dir, --web-dir, --env-file
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, SERVICE_ENV_FILE
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Directory for the journal, style override and local sources" default:".data"`
	WebDir  string `doc:"Path to web/ directory" default:"web"`
	EnvFile string `doc:"Dotenv file with MAPBOX_KEY and map settings" default:".env"`
}

func loadConfig(opts *Options) (*config.Config, *slog.Logger) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", opts.EnvFile, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg, observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func newServer(opts *Options) (*server.Server, *config.Config, *slog.Logger) {
	cfg, logger := loadConfig(opts)
	srv, err := server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		WebDir:  opts.WebDir,
	}, cfg, logger)
	if err != nil {
		logger.Error("create server", "error", err)
		os.Exit(1)
	}
	return srv, cfg, logger
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			httpServer *http.Server
			srv        *server.Server
			stop       context.CancelFunc
		)

		hooks.OnStart(func() {
			var cfg *config.Config
			var logger *slog.Logger
			srv, cfg, logger = newServer(opts)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("quakemap server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Pages:   %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()
			if !cfg.TokenConfigured() {
				logger.Warn("MAPBOX_KEY is not set, the viewer will show an error instead of a map")
			}

			var ctx context.Context
			ctx, stop = context.WithCancel(context.Background())
			go srv.RunSweeper(ctx)

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
			stop()
			srv.Close()
		})
	})

	cli.Root().Use = "quakemap"
	cli.Root().Short = "Interactive earthquake, building and US state map widgets"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, _, _ := newServer(opts)
			defer srv.Close()
			spec := srv.API().OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
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
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// style subcommand: print the layer document widgets are mounted with
	styleCmd := &cobra.Command{
		Use:   "style",
		Short: "Print the layer document (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, _ := loadConfig(opts)
			doc, err := cfg.Document()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading style: %v\n", err)
				os.Exit(1)
			}
			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := style.Marshal(doc, useYAML)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling style: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	styleCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(styleCmd)

	// simulate subcommand: drive a headless widget from pointer positions
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Hover US states headlessly from \"lon lat\" lines on stdin",
		Long: "Mounts a widget on the in-memory engine, hit-tests each \"lon lat\" line\n" +
			"against the states GeoJSON and prints every hover write. \"leave\" moves\n" +
			"the pointer off the map.",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			statesFile, _ := cmd.Flags().GetString("states")
			fc, err := service.ReadFeatures(statesFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading states: %v\n", err)
				os.Exit(1)
			}
			cfg, logger := loadConfig(opts)
			doc, err := cfg.Document()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading style: %v\n", err)
				os.Exit(1)
			}
			if err := runSimulation(os.Stdin, os.Stdout, fc, doc, logger); err != nil {
				fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	simulateCmd.Flags().StringP("states", "s", "us_states.geojson", "GeoJSON file with the state polygons")
	cli.Root().AddCommand(simulateCmd)

	cli.Run()
}
