package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup initialises structured JSON logging for the daemon and returns the
// root logger. Every line carries the service name, plus the environment when
// one is configured. The standard library logger is redirected through the
// same handler so third-party packages that still call log.Printf stay on the
// structured stream.
func Setup(service, env string) *slog.Logger {
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	root := slog.New(handler).With(args...)
	slog.SetDefault(root)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return root
}
