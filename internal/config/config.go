package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MetricConfig holds the polling and alerting settings for one sampler.
// Threshold units are metric-specific: megabytes for memory, normalized
// percent for CPU. A zero threshold disables that severity level.
type MetricConfig struct {
	UpdateIntervalMs int     `mapstructure:"update_interval_ms"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
	ErrorThreshold   float64 `mapstructure:"error_threshold"`
}

// RestartConfig tunes the kill, restart, and re-detect recovery workflow.
// The settle phases poll for the target condition instead of sleeping a
// fixed delay; the max-wait values cap each phase.
type RestartConfig struct {
	PollIntervalMs  int    `mapstructure:"poll_interval_ms"`
	KillMaxWaitMs   int    `mapstructure:"kill_max_wait_ms"`
	StartMaxWaitMs  int    `mapstructure:"start_max_wait_ms"`
	RestartCommand  string `mapstructure:"restart_command"`
	ProgressUpdates int    `mapstructure:"progress_updates"`
}

// ControlConfig configures the local control endpoint used by the
// embedding editor (unix socket, or named pipe on Windows).
type ControlConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Socket  string `mapstructure:"socket"`
}

type Config struct {
	ProcessName            string        `mapstructure:"process_name"`
	Memory                 MetricConfig  `mapstructure:"memory"`
	CPU                    MetricConfig  `mapstructure:"cpu"`
	Status                 MetricConfig  `mapstructure:"status"`
	PresentationIntervalMs int           `mapstructure:"presentation_interval_ms"`
	CommandTimeoutMs       int           `mapstructure:"command_timeout_ms"`
	Restart                RestartConfig `mapstructure:"restart"`
	Control                ControlConfig `mapstructure:"control"`
	Debug                  bool          `mapstructure:"debug"`
	LogLevel               string        `mapstructure:"log_level"`
	LogFormat              string        `mapstructure:"log_format"`
	LogFile                string        `mapstructure:"log_file"`
}

func Default() *Config {
	return &Config{
		ProcessName: "clangd",
		Memory: MetricConfig{
			UpdateIntervalMs: 5000,
			WarningThreshold: 2048, // MB
			ErrorThreshold:   4096,
		},
		CPU: MetricConfig{
			UpdateIntervalMs: 5000,
			WarningThreshold: 50, // normalized percent
			ErrorThreshold:   85,
		},
		Status: MetricConfig{
			UpdateIntervalMs: 15000,
		},
		PresentationIntervalMs: 2000,
		CommandTimeoutMs:       10000,
		Restart: RestartConfig{
			PollIntervalMs:  250,
			KillMaxWaitMs:   3000,
			StartMaxWaitMs:  5000,
			ProgressUpdates: 3,
		},
		Control: ControlConfig{
			Enabled: true,
			Socket:  DefaultSocketPath(),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lspmon")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LSPMON")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// LSPMON_DEBUG=1 is a convenience override; behavior still flows from
	// the explicit Debug field.
	if os.Getenv("LSPMON_DEBUG") == "1" {
		cfg.Debug = true
	}

	return cfg, nil
}

// Watch invokes onChange with a freshly loaded config whenever the config
// file on disk changes. Reload failures keep the previous config and are
// reported through onError.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg := Default()
		if err := viper.Unmarshal(cfg); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		cfg.Validate()
		onChange(cfg)
	})
	viper.WatchConfig()
}

// DefaultSocketPath returns the control endpoint address: a named pipe on
// Windows, a unix socket under the temp dir elsewhere.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\lspmon`
	}
	return filepath.Join(os.TempDir(), "lspmon.sock")
}

func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "lspmon")
}
