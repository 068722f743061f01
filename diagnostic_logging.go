package ensemble

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-ensemble/pkg/diag"
)

// Diagnostic is a non-fatal issue reported alongside a result.
type Diagnostic = diag.Diagnostic

// Diagnostics lists the issues reported by one call.
type Diagnostics = diag.Diagnostics

// DiagnosticLogger records diagnostics as they are produced.
type DiagnosticLogger interface {
	LogDiagnostic(Diagnostic)
}

// DiagnosticLoggerFunc adapts a function to DiagnosticLogger.
type DiagnosticLoggerFunc func(Diagnostic)

// LogDiagnostic implements DiagnosticLogger.
func (f DiagnosticLoggerFunc) LogDiagnostic(d Diagnostic) {
	if f != nil {
		f(d)
	}
}

type noopDiagnosticLogger struct{}

func (noopDiagnosticLogger) LogDiagnostic(Diagnostic) {}

// SlogDiagnostics writes diagnostics as warnings to logger.
func SlogDiagnostics(logger *slog.Logger) DiagnosticLogger {
	if logger == nil {
		return noopDiagnosticLogger{}
	}
	return DiagnosticLoggerFunc(func(d Diagnostic) {
		attrs := []slog.Attr{slog.String("error", d.Error())}
		if d.Key != "" {
			attrs = append(attrs, slog.String("key", d.Key))
		}
		if d.Column != "" {
			attrs = append(attrs, slog.String("column", d.Column))
		}
		if d.Indexed {
			attrs = append(attrs, slog.Int("realization", d.Index))
		}
		logger.LogAttrs(context.Background(), slog.LevelWarn, "ensemble diagnostic", attrs...)
	})
}

// WithDiagnosticLogger forwards every diagnostic to logger in addition to
// returning it.
func WithDiagnosticLogger(logger DiagnosticLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.diagnostics = noopDiagnosticLogger{}
			return
		}
		cfg.diagnostics = logger
	}
}

func (c config) report(diags Diagnostics) Diagnostics {
	logger := c.diagnosticLogger()
	for _, d := range diags {
		logger.LogDiagnostic(d)
	}
	return diags
}
