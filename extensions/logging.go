// Package extensions collects ready-to-use Extension implementations:
// structured logging and a dependency-graph dump on failure. Both are
// ordinary consumers of the public Extension interface — nothing here
// reaches into package pumped's internals.
package extensions

import (
	"context"
	"log/slog"
	"time"

	pumped "github.com/pumped-fn/go-pumped"
)

// LoggingExtension logs every operation that passes through Wrap (atom
// factory runs and flow Execs) at
// debug level on entry and at info (or error, on failure) on exit, via
// log/slog so callers can route it wherever their own logging goes.
type LoggingExtension struct {
	pumped.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a logging extension writing through logger.
// A nil logger falls back to slog.Default().
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{
		BaseExtension: pumped.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *pumped.Operation) (any, error) {
	label := operationLabel(op)
	start := time.Now()
	e.logger.Debug("operation starting", "kind", op.Kind, "target", label)

	result, err := next()

	elapsed := time.Since(start)
	if err != nil {
		e.logger.Error("operation failed", "kind", op.Kind, "target", label, "elapsed", elapsed, "error", err)
	} else {
		e.logger.Info("operation completed", "kind", op.Kind, "target", label, "elapsed", elapsed)
	}
	return result, err
}

func operationLabel(op *pumped.Operation) string {
	if op.Atom != nil {
		return op.Atom.Label()
	}
	if op.Flow != nil {
		return op.Flow.Label()
	}
	return "?"
}
