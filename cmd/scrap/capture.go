package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/scrap/internal/config"
	"github.com/breeze-rmm/scrap/internal/dxgi"
	"github.com/breeze-rmm/scrap/internal/session"
	"github.com/breeze-rmm/scrap/internal/sink"
	"github.com/breeze-rmm/scrap/internal/workerpool"
)

const drainTimeout = 30 * time.Second

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture frames from a display into PNG files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		return runCapture(cmd, cfg)
	},
}

func init() {
	captureCmd.Flags().Int("display", 0, "display index as listed by the displays command")
	captureCmd.Flags().Int("frames", 10, "number of frames to write")
	captureCmd.Flags().Int("timeout", 100, "frame acquire timeout in milliseconds")
	captureCmd.Flags().String("out", "frames", "output directory")
	captureCmd.Flags().Int("workers", 2, "PNG encoder workers")
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Timeout:         time.Duration(cfg.FrameTimeoutMs) * time.Millisecond,
		SkipUnchanged:   cfg.SkipUnchanged,
		RebuildAttempts: cfg.RebuildAttempts,
		RebuildBackoff:  time.Duration(cfg.RebuildBackoffMs) * time.Millisecond,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCapture(cmd *cobra.Command, cfg *config.Config) error {
	b, err := dxgi.NewBackend()
	if err != nil {
		return err
	}

	pool := workerpool.New(cfg.EncodeWorkers, cfg.EncodeQueueSize)
	writer, err := sink.NewPNGWriter(cfg.OutputDir, pool)
	if err != nil {
		return err
	}

	opts := sessionOptions(cfg)
	opts.MaxFrames = cfg.FrameCount
	s := session.New(session.DXGIOpener(b, cfg.DisplayIndex), opts, nil)
	defer s.Close()

	ctx, stop := signalContext()
	defer stop()

	log.Info("capture starting", "display", cfg.DisplayIndex, "frames", cfg.FrameCount, "out", cfg.OutputDir)
	runErr := s.Run(ctx, writer)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	closeErr := writer.Close(drainCtx)

	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", writer.Written(), cfg.OutputDir)
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(s.Metrics().Snapshot()); err != nil {
		return err
	}
	return enc.Close()
}
