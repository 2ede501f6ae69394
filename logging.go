package marvin

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/zoobzio/capitan"
)

// NewLogger builds a colorized slog logger at the given level. Unknown
// levels fall back to info.
func NewLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
	})

	return slog.New(handler)
}

// LogBridge forwards request, provider, tool, and loop signals to a
// structured logger. Close detaches all listeners.
type LogBridge struct {
	listeners []interface{ Close() }
}

// AttachLogger bridges hook signals into logger. Callers that want richer
// observability (metrics, tracing) should hook the signals directly instead.
func AttachLogger(logger *slog.Logger) *LogBridge {
	bridge := &LogBridge{}

	hook := func(signal capitan.Signal, level slog.Level, keys []attrKey) {
		listener := capitan.Hook(signal, func(_ context.Context, e *capitan.Event) {
			attrs := make([]any, 0, len(keys)*2)
			for _, k := range keys {
				if v, ok := k.value(e); ok {
					attrs = append(attrs, k.name, v)
				}
			}
			logger.Log(context.Background(), level, string(signal), attrs...)
		})
		bridge.listeners = append(bridge.listeners, listener)
	}

	hook(RequestStarted, slog.LevelDebug, []attrKey{
		attr("request_id", RequestIDKey),
		attr("capability", CapabilityKey),
		attr("provider", ProviderKey),
	})
	hook(RequestCompleted, slog.LevelInfo, []attrKey{
		attr("request_id", RequestIDKey),
		attr("capability", CapabilityKey),
		attr("provider", ProviderKey),
		attr("total_tokens", TotalTokensKey),
		attr("duration_ms", DurationMsKey),
	})
	hook(RequestFailed, slog.LevelError, []attrKey{
		attr("request_id", RequestIDKey),
		attr("capability", CapabilityKey),
		attr("provider", ProviderKey),
		attr("error", ErrorKey),
	})
	hook(ProviderCallFailed, slog.LevelWarn, []attrKey{
		attr("request_id", RequestIDKey),
		attr("provider", ProviderKey),
		attr("error", ErrorKey),
		attr("http_status", HTTPStatusCodeKey),
	})
	hook(ResponseParseFailed, slog.LevelWarn, []attrKey{
		attr("request_id", RequestIDKey),
		attr("capability", CapabilityKey),
		attr("error", ErrorKey),
	})
	hook(ToolDispatched, slog.LevelDebug, []attrKey{
		attr("request_id", RequestIDKey),
		attr("tool", ToolNameKey),
		attr("iteration", IterationKey),
	})
	hook(ToolFailed, slog.LevelWarn, []attrKey{
		attr("request_id", RequestIDKey),
		attr("tool", ToolNameKey),
		attr("error", ErrorKey),
	})
	hook(LoopCompleted, slog.LevelInfo, []attrKey{
		attr("request_id", RequestIDKey),
		attr("iterations", IterationKey),
		attr("incomplete", IncompleteKey),
	})

	return bridge
}

// Close detaches every listener the bridge registered.
func (b *LogBridge) Close() {
	for _, l := range b.listeners {
		l.Close()
	}
	b.listeners = nil
}

// attrKey adapts a typed event key to a slog attribute.
type attrKey struct {
	name  string
	value func(*capitan.Event) (any, bool)
}

func attr[T any](name string, key interface {
	From(*capitan.Event) (T, bool)
}) attrKey {
	return attrKey{name: name, value: func(e *capitan.Event) (any, bool) {
		v, ok := key.From(e)
		return v, ok
	}}
}
