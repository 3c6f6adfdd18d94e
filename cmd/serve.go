package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/api"
	"github.com/sells-group/tract-overlays/internal/config"
	"github.com/sells-group/tract-overlays/internal/fetcher"
	"github.com/sells-group/tract-overlays/internal/geometry"
	"github.com/sells-group/tract-overlays/internal/metric"
	"github.com/sells-group/tract-overlays/internal/render"
	"github.com/sells-group/tract-overlays/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the overlay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		server, geo, err := newServer(cfg)
		if err != nil {
			return err
		}
		defer server.Close()

		// Warm the shared geometry so the first view does not pay for it.
		go func() {
			if _, err := geo.Get(ctx); err != nil {
				zap.L().Warn("geometry warm-up failed", zap.Error(err))
			}
		}()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("data_dir", cfg.Server.DataDir),
			zap.String("geometry", cfg.Geometry.Location),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServer wires the fetcher, geometry store and metric loader into the
// HTTP server.
func newServer(c *config.Config) (*api.Server, *geometry.Store, error) {
	set, err := config.LoadOverlays(c.Overlays)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(c.Geometry.TempDir, 0o755); err != nil {
		return nil, nil, eris.Wrapf(err, "serve: create temp dir %s", c.Geometry.TempDir)
	}

	// The HTTP fetcher makes one attempt per call; retry owns every retry
	// so fetch.max_retries bounds the total attempts per download.
	retry := resilience.FromSettings(c.Fetch.MaxRetries, c.Fetch.RetryBackoffMs)
	f := newRouter(c, c.Server.DataDir)

	geo := geometry.NewStore(geometry.WithRetry(geometry.NewSource(f, c.Geometry.Location, c.Geometry.TempDir), retry))
	server := api.NewServer(api.Options{
		Overlays: set,
		Geometry: geo,
		Metrics:  metric.NewFetchLoader(f, c.Geometry.TempDir, retry),
		Style: render.StyleOptions{
			Name:      "tract-overlays",
			Camera:    render.Camera{Center: [2]float64{c.Map.CenterLon, c.Map.CenterLat}, Zoom: c.Map.Zoom},
			BaseStyle: c.Map.StyleURL,
		},
		DataDir:        c.Server.DataDir,
		AllowedOrigins: c.Server.AllowedOrigins,
		MaxSessions:    c.Server.MaxSessions,
		Cache:          api.NewPayloadCache(c.Server.CacheEntries, time.Duration(c.Server.CacheTTLSecs)*time.Second),
	})
	return server, geo, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds single-attempt fetchers; callers wrap them in the
// fetch.max_retries policy.
func newRouter(c *config.Config, baseDir string) *fetcher.Router {
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	return fetcher.NewRouter(fetcher.Options{
		HTTP: fetcher.HTTPOptions{
			UserAgent:  c.Fetch.UserAgent,
			Timeout:    timeout,
			MaxRetries: 1,
		},
		FTP:     fetcher.FTPOptions{Timeout: timeout},
		BaseDir: baseDir,
	})
}
