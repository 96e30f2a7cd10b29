package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/chatterbox/internal/config"
	"github.com/BioHazard786/chatterbox/internal/logging"
	"github.com/BioHazard786/chatterbox/internal/relay"
	"github.com/BioHazard786/chatterbox/internal/server"
	"github.com/BioHazard786/chatterbox/internal/version"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the websocket signaling relay.

Clients connect to /ws, join a room named by the call id and exchange
offers, answers and ICE candidates through it. /health and /metrics are
served on the same port.

Examples:
  chatterbox serve
  chatterbox serve --port 8080 --allowed-origins https://chat.example.com
  PORT=8080 chatterbox serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := relay.NewHub(relay.Options{
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	}, relay.NewMetrics(reg))

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.NewHandler(hub, cfg, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("starting signaling relay", "addr", srv.Addr, "version", version.Version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down signaling relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	config.AddRelayFlags(serveCmd.Flags())
}
