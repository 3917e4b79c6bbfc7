package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-linkcup/internal/config"
	"github.com/teslashibe/go-linkcup/internal/log"
	"github.com/teslashibe/go-linkcup/pkg/gateway"
	"github.com/teslashibe/go-linkcup/pkg/metrics"
	"github.com/teslashibe/go-linkcup/pkg/store"
	"github.com/teslashibe/go-linkcup/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway and dashboard",
	Long: `Start the device gateway, REST API and live dashboard feed.

Examples:
  linkcup serve                       # Listen on the configured port (8080)
  linkcup serve --port 9000           # Listen on port 9000
  linkcup serve -c linkcup.toml       # Load tuning and reload it on change`,
	RunE: runServe,
}

var (
	servePort   int
	serveStatic string
	serveRecord bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "Directory of dashboard assets to serve at /")
	serveCmd.Flags().BoolVar(&serveRecord, "record", false, "Record device telemetry (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveRecord {
		cfg.Recording.Enabled = true
	}
	logger := log.Component("serve")

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions gateway.SessionStore
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer st.Close()
		sessions = st
		logger.Info("session history", "path", cfg.Store.Path)
	}

	var rec metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		otel, err := metrics.NewExporter(ctx, metrics.Config{
			Endpoint:    cfg.Metrics.Endpoint,
			ServiceName: cfg.Metrics.ServiceName,
			Interval:    cfg.Metrics.Interval,
			Insecure:    cfg.Metrics.Insecure,
		})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		rec = otel
		logger.Info("metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Close(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}()

	gwCfg := gateway.Config{
		Engine:      cfg.Engine,
		Report:      cfg.Report,
		KeyCooldown: cfg.Gateway.KeyCooldown,
	}
	if cfg.Recording.Enabled {
		gwCfg.RecordDir = cfg.Recording.Dir
	}
	gw := gateway.New(gwCfg, sessions, rec, log.Component("gateway"))
	defer gw.Flush()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, log.Component("config"), func(next config.Config) {
				gw.SetEngineConfig(next.Engine)
			})
			if err != nil {
				logger.Warn("config reload disabled", "error", err)
			}
		}()
	}

	server := web.NewServer(web.Options{Addr: cfg.Addr(), StaticDir: serveStatic}, gw, log.Component("web"))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}
