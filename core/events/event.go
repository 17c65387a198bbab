package events

// Event represents a structured state change emitted by the sale engine.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes every event to a structured logger. It is the default
// sink for single-process deployments without an external event bus.
type LogEmitter struct {
	log Logger
}

// Logger is the minimal logging surface the emitter needs; log/slog satisfies
// it.
type Logger interface {
	Info(msg string, args ...any)
}

// NewLogEmitter constructs an emitter writing to the supplied logger. A nil
// logger yields a no-op emitter instead.
func NewLogEmitter(log Logger) Emitter {
	if log == nil {
		return NoopEmitter{}
	}
	return &LogEmitter{log: log}
}

// Emit implements the Emitter interface.
func (e *LogEmitter) Emit(event Event) {
	if e == nil || e.log == nil || event == nil {
		return
	}
	args := make([]any, 0, len(event.Attributes())*2)
	for key, value := range event.Attributes() {
		args = append(args, key, value)
	}
	e.log.Info(event.EventType(), args...)
}
