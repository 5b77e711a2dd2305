// Package config loads scrap settings from file, environment and flags.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`

	// DisplayIndex selects a display by enumeration order.
	DisplayIndex   int  `mapstructure:"display_index" yaml:"display_index"`
	FrameTimeoutMs int  `mapstructure:"frame_timeout_ms" yaml:"frame_timeout_ms"`
	SkipUnchanged  bool `mapstructure:"skip_unchanged" yaml:"skip_unchanged"`

	// RebuildAttempts bounds consecutive capturer rebuilds after the
	// duplication session is lost. Zero disables rebuilding.
	RebuildAttempts  int `mapstructure:"rebuild_attempts" yaml:"rebuild_attempts"`
	RebuildBackoffMs int `mapstructure:"rebuild_backoff_ms" yaml:"rebuild_backoff_ms"`

	FrameCount      int    `mapstructure:"frame_count" yaml:"frame_count"`
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir"`
	EncodeWorkers   int    `mapstructure:"encode_workers" yaml:"encode_workers"`
	EncodeQueueSize int    `mapstructure:"encode_queue_size" yaml:"encode_queue_size"`

	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

func Default() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		LogMaxSizeMB:     20,
		LogMaxBackups:    3,
		FrameTimeoutMs:   100,
		SkipUnchanged:    true,
		RebuildAttempts:  5,
		RebuildBackoffMs: 500,
		FrameCount:       10,
		OutputDir:        "frames",
		EncodeWorkers:    2,
		EncodeQueueSize:  16,
		ListenAddr:       "127.0.0.1:8765",
	}
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"log-format": "log_format",
	"log-file":   "log_file",
	"display":    "display_index",
	"timeout":    "frame_timeout_ms",
	"frames":     "frame_count",
	"out":        "output_dir",
	"listen":     "listen_addr",
	"workers":    "encode_workers",
}

// Load reads scrap.yaml (or cfgFile), then SCRAP_* environment variables,
// then any flags in fs that were set explicitly. A missing config file is
// not an error.
func Load(cfgFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("scrap")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SCRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_max_size_mb", d.LogMaxSizeMB)
	v.SetDefault("log_max_backups", d.LogMaxBackups)
	v.SetDefault("display_index", d.DisplayIndex)
	v.SetDefault("frame_timeout_ms", d.FrameTimeoutMs)
	v.SetDefault("skip_unchanged", d.SkipUnchanged)
	v.SetDefault("rebuild_attempts", d.RebuildAttempts)
	v.SetDefault("rebuild_backoff_ms", d.RebuildBackoffMs)
	v.SetDefault("frame_count", d.FrameCount)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("encode_workers", d.EncodeWorkers)
	v.SetDefault("encode_queue_size", d.EncodeQueueSize)
	v.SetDefault("listen_addr", d.ListenAddr)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "scrap")
	case "darwin":
		return "/Library/Application Support/scrap"
	default:
		return "/etc/scrap"
	}
}
