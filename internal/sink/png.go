package sink

import (
	"bufio"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/scrap/internal/logging"
	"github.com/breeze-rmm/scrap/internal/session"
	"github.com/breeze-rmm/scrap/internal/workerpool"
)

var log = logging.L("sink")

// PNGWriter encodes frames to dir/frame-NNNNNN.png on a worker pool.
type PNGWriter struct {
	dir     string
	pool    *workerpool.Pool
	encoder png.Encoder
	written atomic.Uint64

	mu  sync.Mutex
	err error
}

func NewPNGWriter(dir string, pool *workerpool.Pool) (*PNGWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &PNGWriter{
		dir:     dir,
		pool:    pool,
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

// Consume queues f for encoding, blocking while the pool queue is full.
// The first encoding failure is returned by every later call.
func (w *PNGWriter) Consume(ctx context.Context, f *session.Frame) error {
	if err := w.Err(); err != nil {
		f.Release()
		return err
	}
	err := w.pool.SubmitWait(ctx, func() {
		defer f.Release()
		if err := w.write(f); err != nil {
			w.fail(err)
		}
	})
	if err != nil {
		f.Release()
		return err
	}
	return nil
}

func (w *PNGWriter) write(f *session.Frame) error {
	path := filepath.Join(w.dir, fmt.Sprintf("frame-%06d.png", f.Seq))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(file, 256*1024)
	if err := w.encoder.Encode(bw, ToRGBA(f)); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	w.written.Add(1)
	log.Debug("frame written", "path", path, "seq", f.Seq)
	return nil
}

func (w *PNGWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
		log.Error("png sink failed", "error", err)
	}
}

func (w *PNGWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written is the number of files completed so far.
func (w *PNGWriter) Written() uint64 { return w.written.Load() }

// Close waits for queued frames to be written.
func (w *PNGWriter) Close(ctx context.Context) error {
	if !w.pool.Drain(ctx) {
		return fmt.Errorf("png sink: %w", ctx.Err())
	}
	return w.Err()
}
