package observability

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config is the validated view of the logging and telemetry settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig rejects settings that would otherwise silently fall back to
// defaults inside the logger or the exporters.
func LoadConfig(cfg config.Config) (Config, error) {
	obs := cfg.Observability
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          cfg.Environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             obs.LogLevel,
		LogFormat:            obs.LogFormat,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: obs.OtelProtocol,
		OtelSamplingRatio:    obs.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "quoteflow"
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if _, err := zapcore.ParseLevel(out.LogLevel); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch out.LogFormat {
	case "", "json", "console":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT %q: want json or console", out.LogFormat)
	}
	if !out.OtelEnabled {
		return out, nil
	}
	switch out.OtelExporterProtocol {
	case "grpc", "grpc/protobuf", "http", "http/protobuf":
	default:
		return Config{}, fmt.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL %q: want grpc or http", out.OtelExporterProtocol)
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		return Config{}, fmt.Errorf("OTEL_SAMPLING_RATIO %v: want a value within 0..1", out.OtelSamplingRatio)
	}
	return out, nil
}

// Debug is on for an explicit debug level and for every non-production
// environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
