package session

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Metrics tracks capture counters for one session across rebuilds.
type Metrics struct {
	mu sync.RWMutex

	FramesCaptured uint64
	FramesSkipped  uint64
	FramesSent     uint64
	FramesDropped  uint64
	Timeouts       uint64
	Rebuilds       uint64
	SessionsLost   uint64

	LastCaptureTime time.Duration
	LastFrameSize   int
	TotalBytes      uint64
	startTime       time.Time

	proc *process.Process
}

func newMetrics() *Metrics {
	m := &Metrics{startTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = p
	}
	return m
}

func (m *Metrics) RecordCapture(d time.Duration, size int) {
	m.mu.Lock()
	m.FramesCaptured++
	m.LastCaptureTime = d
	m.LastFrameSize = size
	m.mu.Unlock()
}

func (m *Metrics) RecordSkip() {
	m.mu.Lock()
	m.FramesSkipped++
	m.mu.Unlock()
}

func (m *Metrics) RecordTimeout() {
	m.mu.Lock()
	m.Timeouts++
	m.mu.Unlock()
}

func (m *Metrics) RecordLost() {
	m.mu.Lock()
	m.SessionsLost++
	m.mu.Unlock()
}

func (m *Metrics) RecordRebuild() {
	m.mu.Lock()
	m.Rebuilds++
	m.mu.Unlock()
}

// RecordSend counts a frame delivered to a sink.
func (m *Metrics) RecordSend(size int) {
	m.mu.Lock()
	m.FramesSent++
	m.TotalBytes += uint64(size)
	m.mu.Unlock()
}

func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.FramesDropped++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of Metrics. RSSBytes and Threads
// come from the OS and are zero when the process cannot be inspected.
type MetricsSnapshot struct {
	FramesCaptured uint64        `json:"framesCaptured" yaml:"frames_captured"`
	FramesSkipped  uint64        `json:"framesSkipped" yaml:"frames_skipped"`
	FramesSent     uint64        `json:"framesSent" yaml:"frames_sent"`
	FramesDropped  uint64        `json:"framesDropped" yaml:"frames_dropped"`
	Timeouts       uint64        `json:"timeouts" yaml:"timeouts"`
	Rebuilds       uint64        `json:"rebuilds" yaml:"rebuilds"`
	SessionsLost   uint64        `json:"sessionsLost" yaml:"sessions_lost"`
	CaptureMs      float64       `json:"captureMs" yaml:"capture_ms"`
	LastFrameSize  int           `json:"lastFrameSize" yaml:"last_frame_size"`
	ThroughputKBps float64       `json:"throughputKBps" yaml:"throughput_kbps"`
	Uptime         time.Duration `json:"uptime" yaml:"uptime"`
	RSSBytes       uint64        `json:"rssBytes" yaml:"rss_bytes"`
	Threads        int32         `json:"threads" yaml:"threads"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	uptime := time.Since(m.startTime)
	s := MetricsSnapshot{
		FramesCaptured: m.FramesCaptured,
		FramesSkipped:  m.FramesSkipped,
		FramesSent:     m.FramesSent,
		FramesDropped:  m.FramesDropped,
		Timeouts:       m.Timeouts,
		Rebuilds:       m.Rebuilds,
		SessionsLost:   m.SessionsLost,
		CaptureMs:      float64(m.LastCaptureTime.Microseconds()) / 1000.0,
		LastFrameSize:  m.LastFrameSize,
		Uptime:         uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.ThroughputKBps = float64(m.TotalBytes) / secs / 1024.0
	}
	proc := m.proc
	m.mu.RUnlock()

	if proc != nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			s.RSSBytes = mem.RSS
		}
		if n, err := proc.NumThreads(); err == nil {
			s.Threads = n
		}
	}
	return s
}
