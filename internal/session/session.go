// Package session drives a capture source in a loop: it retries transient
// failures, rebuilds the source when the duplication session is lost, copies
// each borrowed view into an owned Frame and hands it to a Sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/breeze-rmm/scrap/internal/dxgi"
	"github.com/breeze-rmm/scrap/internal/health"
	"github.com/breeze-rmm/scrap/internal/logging"
)

var log = logging.L("session")

// HealthCheck is the health component name the session reports under.
const HealthCheck = "capture"

// minRetryDelay bounds how fast an immediately failing source is polled.
const minRetryDelay = 5 * time.Millisecond

// ErrRebuildExhausted is returned when the source could not be rebuilt
// within the configured number of attempts.
var ErrRebuildExhausted = errors.New("session: capture source could not be rebuilt")

// Sink consumes frames. It owns the frame and must call Release when done.
type Sink interface {
	Consume(ctx context.Context, f *Frame) error
}

type Options struct {
	Timeout       time.Duration
	SkipUnchanged bool
	// RebuildAttempts bounds the open attempts made after a lost session.
	// Zero makes a lost session fatal.
	RebuildAttempts int
	RebuildBackoff  time.Duration
	// MaxFrames stops Run after this many delivered frames; zero runs until
	// the context ends.
	MaxFrames int
}

type Session struct {
	open    Opener
	opts    Options
	health  *health.Monitor
	metrics *Metrics
	differ  frameDiffer
	buffers bufferPool

	src Source
	// mu guards display for readers outside the capture goroutine.
	mu       sync.RWMutex
	display  DisplayInfo
	opened   bool
	seq      uint64
	failures int
}

// New creates a session. hm may be nil.
func New(open Opener, opts Options, hm *health.Monitor) *Session {
	if hm == nil {
		hm = health.NewMonitor()
	}
	return &Session{open: open, opts: opts, health: hm, metrics: newMetrics()}
}

func (s *Session) Metrics() *Metrics { return s.metrics }

// Display describes the current source; zero before the first Next.
func (s *Session) Display() DisplayInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// Next blocks until a changed frame is captured or ctx ends.
func (s *Session) Next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.src == nil {
			if err := s.rebuild(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		view, err := s.src.Frame(s.opts.Timeout)
		switch {
		case err == nil:
		case dxgi.IsTransient(err):
			s.metrics.RecordTimeout()
			// Interrupted returns at once, as does TimedOut with a zero
			// timeout; either would otherwise spin.
			if errors.Is(err, dxgi.Interrupted) || s.opts.Timeout <= 0 {
				if err := sleep(ctx, s.retryDelay()); err != nil {
					return nil, err
				}
			}
			continue
		case dxgi.NeedsRebuild(err):
			s.metrics.RecordLost()
			if s.opts.RebuildAttempts == 0 {
				s.health.Update(HealthCheck, health.Unhealthy, err.Error())
				s.drop()
				return nil, fmt.Errorf("capture frame: %w", err)
			}
			s.health.Update(HealthCheck, health.Degraded, err.Error())
			log.Warn("duplication session lost, rebuilding", logging.KeyDisplay, s.display.Name, logging.KeyError, err)
			s.drop()
			continue
		default:
			s.health.Update(HealthCheck, health.Unhealthy, err.Error())
			return nil, fmt.Errorf("capture frame: %w", err)
		}
		s.metrics.RecordCapture(time.Since(start), len(view))

		info := s.src.LastFrameInfo()
		if s.opts.SkipUnchanged && !s.differ.changed(info, view) {
			s.metrics.RecordSkip()
			continue
		}
		return s.own(view, info), nil
	}
}

// own copies the borrowed view before the next Frame call invalidates it.
func (s *Session) own(view []byte, info dxgi.FrameInfo) *Frame {
	pix := s.buffers.get(len(view))
	copy(pix, view)

	rows := s.src.Rows()
	stride := 0
	if rows > 0 {
		stride = len(view) / rows
	}
	s.seq++
	return &Frame{
		Seq:        s.seq,
		Display:    s.display,
		Rows:       rows,
		Stride:     stride,
		Pix:        pix,
		Info:       info,
		CapturedAt: time.Now(),
		pool:       &s.buffers,
	}
}

// rebuild opens a new source, waiting RebuildBackoff between failed
// attempts. The very first open is not counted as a rebuild.
func (s *Session) rebuild(ctx context.Context) error {
	first := !s.opened
	for {
		src, info, err := s.open()
		if err == nil {
			s.mu.Lock()
			s.display = info
			s.mu.Unlock()
			s.src, s.failures, s.opened = src, 0, true
			s.differ.reset()
			if !first {
				s.metrics.RecordRebuild()
			}
			s.health.Update(HealthCheck, health.Healthy, "")
			log.Info("capture source ready", logging.KeyDisplay, info.Name,
				"width", info.Width, "height", info.Height, "fastlane", info.Fastlane)
			return nil
		}

		s.failures++
		if first || s.failures >= s.opts.RebuildAttempts {
			s.health.Update(HealthCheck, health.Unhealthy, err.Error())
			if first {
				return err
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrRebuildExhausted, s.failures, err)
		}
		log.Warn("rebuild failed, retrying", "attempt", s.failures, "error", err)

		if err := sleep(ctx, s.opts.RebuildBackoff); err != nil {
			return err
		}
	}
}

// retryDelay is the pause after a transient failure that did not block:
// the smaller of Timeout and RebuildBackoff, never below minRetryDelay.
func (s *Session) retryDelay() time.Duration {
	d := s.opts.RebuildBackoff
	if s.opts.Timeout > 0 && s.opts.Timeout < d {
		d = s.opts.Timeout
	}
	return max(d, minRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) drop() {
	if s.src == nil {
		return
	}
	if err := s.src.Close(); err != nil {
		log.Debug("source close failed", "error", err)
	}
	s.src = nil
}

// Run delivers frames to sink until ctx ends, MaxFrames is reached or a
// non-recoverable error occurs. Context cancellation is not an error.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	delivered := 0
	for s.opts.MaxFrames == 0 || delivered < s.opts.MaxFrames {
		f, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		size := len(f.Pix)
		if err := sink.Consume(ctx, f); err != nil {
			s.metrics.RecordDrop()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("deliver frame %d: %w", f.Seq, err)
		}
		s.metrics.RecordSend(size)
		delivered++
	}
	return nil
}

// Close releases the current source.
func (s *Session) Close() {
	s.drop()
}
