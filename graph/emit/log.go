package emit

import "go.uber.org/zap"

// LogEmitter writes events to a zap logger, one structured entry per event.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates an emitter backed by the given logger. A nil logger
// falls back to zap.NewNop so callers never need to guard.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs the event at debug level with its structured fields.
func (l *LogEmitter) Emit(event Event) {
	fields := []zap.Field{
		zap.String("task_id", event.TaskID),
		zap.Int("step", event.Step),
		zap.String("node_id", event.NodeID),
	}
	if len(event.Meta) > 0 {
		fields = append(fields, zap.Any("meta", event.Meta))
	}
	l.logger.Debug(event.Msg, fields...)
}
