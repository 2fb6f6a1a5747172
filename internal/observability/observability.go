// Package observability installs the process-wide slog logger.
//
// The plain text and json formats log to stderr with stdlib handlers. The
// otel formats bridge slog into the OpenTelemetry log SDK: "otel" prints
// OTel records to stderr, "otlp" and "otlp-grpc" export them to a
// collector configured through the standard OTEL_EXPORTER_OTLP_* variables.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module in exported log records.
const instrumentationName = "github.com/edugate-dev/edugate"

// Instrument sets the default slog logger according to the configured level
// and format. The returned shutdown function flushes any buffered log
// export; it is a no-op for the stdlib formats.
func Instrument(ctx context.Context, level slog.Level, format string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return noop, nil
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return noop, nil
	}

	var (
		exporter sdklog.Exporter
		err      error
	)
	switch format {
	case "otel":
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	case "otlp":
		exporter, err = otlploghttp.New(ctx)
	case "otlp-grpc":
		exporter, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(
			minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), toSeverity(level)),
		),
	)

	slog.SetDefault(slog.New(otelslog.NewHandler(
		instrumentationName,
		otelslog.WithLoggerProvider(provider),
	)))

	return provider.Shutdown, nil
}

func toSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
