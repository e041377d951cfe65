package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogSink persists job log records.
type LogSink interface {
	InsertLog(ctx context.Context, jobID uuid.UUID, at time.Time, level, message string, metadata json.RawMessage) error
}

// JobLogHandler is a slog.Handler that writes records to research_logs and,
// when Console is set, also forwards them there.
type JobLogHandler struct {
	Sink    LogSink
	JobID   uuid.UUID
	Console slog.Handler

	attrs  []slog.Attr
	groups []string
}

func NewJobLogHandler(sink LogSink, jobID uuid.UUID, console slog.Handler) *JobLogHandler {
	return &JobLogHandler{
		Sink:    sink,
		JobID:   jobID,
		Console: console,
	}
}

func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.Console != nil && h.Console.Enabled(ctx, r.Level) {
		_ = h.Console.Handle(ctx, r.Clone())
	}

	attrs := make(map[string]interface{})
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.prefixed(a.Key)] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs outlive the request that started the job.
	return h.Sink.InsertLog(context.Background(), h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
}

// attrValue converts errors to their message; json.Marshal would emit {}.
func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	if v.Kind() == slog.KindDuration {
		return v.Duration().String()
	}
	return v.Any()
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		a.Key = h.prefixed(a.Key)
		next.attrs = append(next.attrs, a)
	}
	if h.Console != nil {
		next.Console = h.Console.WithAttrs(attrs)
	}
	return next
}

func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.groups = append(next.groups, name)
	if h.Console != nil {
		next.Console = h.Console.WithGroup(name)
	}
	return next
}

func (h *JobLogHandler) prefixed(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

func (h *JobLogHandler) clone() *JobLogHandler {
	return &JobLogHandler{
		Sink:    h.Sink,
		JobID:   h.JobID,
		Console: h.Console,
		attrs:   append([]slog.Attr{}, h.attrs...),
		groups:  append([]string{}, h.groups...),
	}
}
