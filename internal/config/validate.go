package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates problems that stop startup from values that
// were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// All returns fatals followed by warnings.
func (r ValidationResult) All() []error {
	out := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	out = append(out, r.Fatals...)
	return append(out, r.Warnings...)
}

// Validate checks and clamps the config, logging every problem found.
func (c *Config) Validate() []error {
	res := c.ValidateTiered()
	for _, err := range res.Fatals {
		slog.Error("config validation", "error", err)
	}
	for _, err := range res.Warnings {
		slog.Warn("config validation", "error", err)
	}
	return res.All()
}

func (c *Config) ValidateTiered() ValidationResult {
	var res ValidationResult

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		res.Warnings = append(res.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		res.Warnings = append(res.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.DisplayIndex < 0 {
		res.Fatals = append(res.Fatals, fmt.Errorf("display_index %d must not be negative", c.DisplayIndex))
	}

	clamp(&res, "frame_timeout_ms", &c.FrameTimeoutMs, 0, 10000)
	clamp(&res, "rebuild_attempts", &c.RebuildAttempts, 0, 100)
	clamp(&res, "rebuild_backoff_ms", &c.RebuildBackoffMs, 0, 60000)
	clamp(&res, "frame_count", &c.FrameCount, 1, 100000)
	clamp(&res, "encode_workers", &c.EncodeWorkers, 1, 32)
	clamp(&res, "encode_queue_size", &c.EncodeQueueSize, 1, 1024)
	clamp(&res, "log_max_size_mb", &c.LogMaxSizeMB, 1, 1024)
	clamp(&res, "log_max_backups", &c.LogMaxBackups, 1, 50)

	if strings.TrimSpace(c.OutputDir) == "" {
		res.Warnings = append(res.Warnings, fmt.Errorf("output_dir is empty, using %q", "frames"))
		c.OutputDir = "frames"
	}

	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			res.Fatals = append(res.Fatals, fmt.Errorf("listen_addr %q: %w", c.ListenAddr, err))
		}
	}

	return res
}

func clamp(res *ValidationResult, key string, v *int, lo, hi int) {
	switch {
	case *v < lo:
		res.Warnings = append(res.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, *v, lo))
		*v = lo
	case *v > hi:
		res.Warnings = append(res.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, *v, hi))
		*v = hi
	}
}
