package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Output goes to stderr so that the CLI
// can keep stdout for the JSON result.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("service", "stellar-ledger-query")), nil
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// StartupConfig holds configuration for startup logging
type StartupConfig struct {
	Mode           string
	ArchiveBackend string
	ArchiveURL     string
	RPCEndpoint    string
	Network        string
	Concurrency    int
	Port           int
}

// LogStartup logs startup configuration
func LogStartup(logger *zap.Logger, cfg StartupConfig) {
	logger.Info("Starting stellar ledger query",
		zap.String("mode", cfg.Mode),
		zap.String("archive_backend", cfg.ArchiveBackend),
		zap.String("archive_url", cfg.ArchiveURL),
		zap.String("rpc_endpoint", cfg.RPCEndpoint),
		zap.String("network", cfg.Network),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("port", cfg.Port))
}

// QueryMetrics summarizes one range query.
type QueryMetrics struct {
	Kind             string
	StartSequence    uint32
	EndSequence      uint32
	LedgersProcessed uint32
	LedgersSkipped   int
	Matches          int
	Cancelled        bool
	Duration         time.Duration
}

// LogQuery logs the outcome of a range query
func LogQuery(logger *zap.Logger, m QueryMetrics) {
	var rate float64
	if secs := m.Duration.Seconds(); secs > 0 {
		rate = float64(m.LedgersProcessed) / secs
	}

	logger.Info("Processed ledger range",
		zap.String("kind", m.Kind),
		zap.Uint32("start_sequence", m.StartSequence),
		zap.Uint32("end_sequence", m.EndSequence),
		zap.Uint32("ledgers_processed", m.LedgersProcessed),
		zap.Int("ledgers_skipped", m.LedgersSkipped),
		zap.Int("matches", m.Matches),
		zap.Bool("cancelled", m.Cancelled),
		zap.Duration("duration", m.Duration),
		zap.Float64("ledgers_per_second", rate))
}
