// Package config loads the sidecar's startup configuration from command
// flags merged with SWSH_-prefixed environment variables, the way
// LanternOps-breeze's agent binds viper to its cobra command. There is no
// on-disk config file: the parent process owns persistent preference
// storage, so viper here is purely the flag/env merge layer.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the sidecar's startup settings.
type Config struct {
	LogLevel         string
	LogFormat        string
	EgressPort       int
	IngressPort      int
	QueueCapacity    int
	SuppressorEngine string
	ModelPath        string
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "console",
		EgressPort:       0,
		IngressPort:      0,
		QueueCapacity:    50,
		SuppressorEngine: "auto",
	}
}

// BindFlags registers the sidecar's flags on fs so a cobra command can
// expose them, and returns a *viper.Viper pre-bound to both fs and the
// SWSH_ environment prefix.
func BindFlags(fs *pflag.FlagSet) *viper.Viper {
	defaults := Default()

	fs.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", defaults.LogFormat, "log output format: console or json")
	fs.Int("egress-port", defaults.EgressPort, "loopback binary egress TCP port (0 = ephemeral)")
	fs.Int("ingress-port", defaults.IngressPort, "microphone binary ingress TCP port (0 = ephemeral)")
	fs.Int("queue-capacity", defaults.QueueCapacity, "bounded frame queue capacity")
	fs.String("suppressor-engine", defaults.SuppressorEngine, "neural suppressor engine: auto, onnx, or stub")
	fs.String("model-path", "", "path to the ONNX noise-suppression model (required when suppressor-engine=onnx)")

	v := viper.New()
	v.SetEnvPrefix("SWSH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
	return v
}

// Load reads Config fields out of v after flag parsing.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
		EgressPort:       v.GetInt("egress-port"),
		IngressPort:      v.GetInt("ingress-port"),
		QueueCapacity:    v.GetInt("queue-capacity"),
		SuppressorEngine: v.GetString("suppressor-engine"),
		ModelPath:        v.GetString("model-path"),
	}

	if cfg.QueueCapacity <= 0 {
		return Config{}, fmt.Errorf("config: queue-capacity must be positive, got %d", cfg.QueueCapacity)
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return Config{}, fmt.Errorf("config: unknown log-format %q", cfg.LogFormat)
	}
	switch cfg.SuppressorEngine {
	case "auto", "onnx", "stub":
	default:
		return Config{}, fmt.Errorf("config: unknown suppressor-engine %q", cfg.SuppressorEngine)
	}

	return cfg, nil
}
