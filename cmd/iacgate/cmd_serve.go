package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
	"iacgate/internal/logging"
	mcpserver "iacgate/internal/mcp"
	"iacgate/internal/metrics"
)

var serveFlags struct {
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Serve exposes validate_artifact, record_outcome and get_report as MCP
tools over stdin/stdout, so agent hosts can call the gate directly.

The server watches its parent process and self-terminates when the host
disconnects, preventing zombie gate processes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090); empty = disabled")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	judges, err := buildJudges(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	store, err := calibration.Open(cfg.Calibration.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker, err := store.LoadTracker(
		calibration.WithMinBucketSamples(cfg.Calibration.MinBucketSamples),
		calibration.WithBuckets(cfg.Calibration.Buckets),
	)
	if err != nil {
		return err
	}

	log := logging.New("serve")
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	if serveFlags.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(serveFlags.metricsAddr, mux); err != nil {
				log.Error("metrics endpoint stopped", "error", err)
			}
		}()
		log.Info("metrics endpoint up", "addr", serveFlags.metricsAddr)
	}

	engine := ensemble.NewEngine(judges, tracker, cfg.GateSettings(),
		ensemble.WithBudget(cfg.Budget()),
		ensemble.WithObserver(recorder))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, cancel)

	srv := mcpserver.NewServer(engine, tracker, store, recorder, version)
	log.Info("starting iacgate MCP server over stdio")
	return srv.Run(ctx)
}
