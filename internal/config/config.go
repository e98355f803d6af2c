// Package config loads the telemetry extension settings from the environment.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"lambda-telemetry-example/internal/lambdaapi"
)

// Environment keys
const (
	KeyRuntimeAPI      = lambdaapi.RuntimeAPIEnv
	KeyListenerHost    = "TELEMETRY_LISTENER_HOST"
	KeyListenerPort    = "TELEMETRY_LISTENER_PORT"
	KeyTypes           = "TELEMETRY_TYPES"
	KeyBufferMaxItems  = "TELEMETRY_BUFFER_MAX_ITEMS"
	KeyBufferMaxBytes  = "TELEMETRY_BUFFER_MAX_BYTES"
	KeyBufferTimeoutMs = "TELEMETRY_BUFFER_TIMEOUT_MS"
	KeyShutdownTimeout = "TELEMETRY_SHUTDOWN_TIMEOUT"
	KeyLogLevel        = "LOG_LEVEL"
	KeyLogFormat       = "LOG_FORMAT"
)

// Config holds the extension configuration
type Config struct {
	RuntimeAPI string
	Listener   ListenerConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

// ListenerConfig is where Lambda delivers telemetry batches
type ListenerConfig struct {
	Host string
	Port int

	// ShutdownTimeout bounds the drain of in-flight batches on SHUTDOWN.
	ShutdownTimeout time.Duration
}

// TelemetryConfig holds the subscription parameters. Nil buffer fields
// leave the Telemetry API defaults in place.
type TelemetryConfig struct {
	Types           []lambdaapi.TelemetryType
	BufferMaxItems  *uint64
	BufferMaxBytes  *uint64
	BufferTimeoutMs *uint64
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  logrus.Level
	Format string // "text" or "json"
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(KeyListenerHost, "sandbox.localdomain")
	v.SetDefault(KeyListenerPort, 1210)
	v.SetDefault(KeyTypes, "platform,function")
	v.SetDefault(KeyShutdownTimeout, "1s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	cfg := &Config{
		RuntimeAPI: v.GetString(KeyRuntimeAPI),
		Listener: ListenerConfig{
			Host: v.GetString(KeyListenerHost),
		},
		Log: LogConfig{
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
	}

	if cfg.RuntimeAPI == "" {
		return nil, fmt.Errorf("%s is required", KeyRuntimeAPI)
	}

	port, err := cast.ToIntE(strings.TrimSpace(v.GetString(KeyListenerPort)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyListenerPort, err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%s must be between 1 and 65535, got %d", KeyListenerPort, port)
	}
	cfg.Listener.Port = port

	// A bare number is rejected rather than read as nanoseconds.
	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString(KeyShutdownTimeout)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyShutdownTimeout, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", KeyShutdownTimeout)
	}
	cfg.Listener.ShutdownTimeout = timeout

	if cfg.Telemetry.BufferMaxItems, err = optionalUint64(v, KeyBufferMaxItems,
		lambdaapi.BufferMaxItemsMin, lambdaapi.BufferMaxItemsMax); err != nil {
		return nil, err
	}
	if cfg.Telemetry.BufferMaxBytes, err = optionalUint64(v, KeyBufferMaxBytes,
		lambdaapi.BufferMaxBytesMin, lambdaapi.BufferMaxBytesMax); err != nil {
		return nil, err
	}
	if cfg.Telemetry.BufferTimeoutMs, err = optionalUint64(v, KeyBufferTimeoutMs,
		lambdaapi.BufferTimeoutMsMin, lambdaapi.BufferTimeoutMsMax); err != nil {
		return nil, err
	}

	types, err := parseTypes(v.GetString(KeyTypes))
	if err != nil {
		return nil, err
	}
	cfg.Telemetry.Types = types

	level, err := logrus.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	cfg.Log.Level = level

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return nil, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, cfg.Log.Format)
	}

	return cfg, nil
}

// optionalUint64 returns nil when key is unset, so the Telemetry API
// default applies.
func optionalUint64(v *viper.Viper, key string, lo, hi uint64) (*uint64, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	n, err := cast.ToUint64E(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if n < lo || n > hi {
		return nil, fmt.Errorf("%s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return &n, nil
}

func parseTypes(s string) ([]lambdaapi.TelemetryType, error) {
	var types []lambdaapi.TelemetryType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tt := lambdaapi.TelemetryType(strings.ToLower(part))
		if !tt.Valid() {
			return nil, fmt.Errorf("%s: unknown telemetry type %q", KeyTypes, part)
		}
		types = append(types, tt)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%s is empty", KeyTypes)
	}
	return types, nil
}

// NewLogger returns a logger writing to w with the configured level and format.
func (c LogConfig) NewLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(c.Level)
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return l
}
