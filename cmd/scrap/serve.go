package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/scrap/internal/config"
	"github.com/breeze-rmm/scrap/internal/dxgi"
	"github.com/breeze-rmm/scrap/internal/health"
	"github.com/breeze-rmm/scrap/internal/session"
	"github.com/breeze-rmm/scrap/internal/sink"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream frames from a display to websocket clients",
	Long: `serve captures a display continuously and broadcasts each changed frame
to clients connected on /frames. /healthz reports capture health and
/metrics the session counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:8765", "HTTP listen address")
	serveCmd.Flags().Int("display", 0, "display index as listed by the displays command")
	serveCmd.Flags().Int("timeout", 100, "frame acquire timeout in milliseconds")
}

// serveMetrics is the /metrics body: session counters plus viewer state.
type serveMetrics struct {
	session.MetricsSnapshot
	Viewers     int    `json:"viewers"`
	ViewerDrops uint64 `json:"viewerDrops"`
}

func newMux(b *sink.Broadcaster, hm *health.Monitor, s *session.Session) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/frames", b)
	mux.Handle("/healthz", hm)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(serveMetrics{
			MetricsSnapshot: s.Metrics().Snapshot(),
			Viewers:         b.Clients(),
			ViewerDrops:     b.Dropped(),
		})
	})
	return mux
}

func runServe(cfg *config.Config) error {
	b, err := dxgi.NewBackend()
	if err != nil {
		return err
	}

	hm := health.NewMonitor()
	s := session.New(session.DXGIOpener(b, cfg.DisplayIndex), sessionOptions(cfg), hm)
	defer s.Close()

	bc := sink.NewBroadcaster(s.Display)
	defer bc.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(bc, hm, s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(runCtx, bc) }()

	var result error
	select {
	case err := <-runErr:
		result = err
	case err, ok := <-serveErr:
		if ok {
			result = err
		}
		cancel()
		<-runErr
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	return result
}
