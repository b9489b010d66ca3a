// Package logging builds the structured zap logger used throughout this
// tool: development vs production zap.Config, ISO8601 timestamps, and
// caller info.
package logging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is the type for context keys this package defines.
type ContextKey string

// RunIDKey is the context key for the current run's identifier.
const RunIDKey ContextKey = "runID"

// New builds a structured logger. development=true selects a
// human-readable console encoding with color levels; false selects the
// JSON production encoding.
func New(development bool) (*zap.Logger, error) {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// WithRunID stamps ctx with a fresh run identifier, used to correlate log
// lines and audit events for one CLI invocation.
func WithRunID(ctx context.Context) (context.Context, string) {
	runID := uuid.New().String()
	return context.WithValue(ctx, RunIDKey, runID), runID
}

// RunID retrieves the run identifier from ctx, or "" if unset.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRunIDField attaches the context's run id to logger as a field, if
// present.
func WithRunIDField(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := RunID(ctx); id != "" {
		return logger.With(zap.String("runID", id))
	}
	return logger
}

// LogCloudCall logs one cloud adapter call at debug level.
func LogCloudCall(logger *zap.Logger, adapter, operation string) {
	logger.Debug("cloud adapter call",
		zap.String("adapter", adapter),
		zap.String("operation", operation),
	)
}

// LogCloudError logs a failed cloud adapter call.
func LogCloudError(logger *zap.Logger, adapter, operation string, err error) {
	logger.Error("cloud adapter call failed",
		zap.String("adapter", adapter),
		zap.String("operation", operation),
		zap.Error(err),
	)
}

// LogHostPhase logs a host entering a pipeline phase.
func LogHostPhase(logger *zap.Logger, hostID, vmID, phase string) {
	logger.Info("host phase",
		zap.String("host", hostID),
		zap.String("vm", vmID),
		zap.String("phase", phase),
	)
}

// LogRunStart logs the start of a rollover/scale-down run.
func LogRunStart(logger *zap.Logger, mode, cluster, asg string, hostCount int) {
	logger.Info("run starting",
		zap.String("mode", mode),
		zap.String("cluster", cluster),
		zap.String("asg", asg),
		zap.Int("hosts", hostCount),
	)
}

// LogRunComplete logs the end of a run.
func LogRunComplete(logger *zap.Logger, mode string, completed, skipped int, aborted bool) {
	logger.Info("run complete",
		zap.String("mode", mode),
		zap.Int("completed", completed),
		zap.Int("skipped", skipped),
		zap.Bool("aborted", aborted),
	)
}
