package mkmax

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/mkmax/model"
)

// Logger is the structured logger of an Index. Field names are stable:
// id, k, count, results, candidates, refined, repaired, duration, error.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		return NewTextLogger(slog.LevelInfo)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON lines at level and above to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger logs key=value lines at level and above to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithID returns a logger that adds the object id to every record.
func (l *Logger) WithID(id model.ID) *Logger { return l.with("id", id) }

// WithK returns a logger that adds k to every record.
func (l *Logger) WithK(k int) *Logger { return l.with("k", k) }

// WithCount returns a logger that adds a count to every record.
func (l *Logger) WithCount(count int) *Logger { return l.with("count", count) }

// outcome logs msg+" completed" at level, or msg+" failed" at error level.
// Failures only carry the attributes in keep.
func (l *Logger) outcome(ctx context.Context, level slog.Level, msg string, err error, keep int, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs[:keep:keep], slog.Any("error", err))
		l.LogAttrs(ctx, slog.LevelError, msg+" failed", attrs...)
		return
	}
	l.LogAttrs(ctx, level, msg+" completed", attrs...)
}

// LogInsert logs a single insert.
func (l *Logger) LogInsert(ctx context.Context, id model.ID, err error) {
	l.outcome(ctx, slog.LevelDebug, "insert", err, 1, slog.Any("id", id))
}

// LogBatchInsert logs an InsertAll call.
func (l *Logger) LogBatchInsert(ctx context.Context, count int, d time.Duration, err error) {
	l.outcome(ctx, slog.LevelInfo, "batch insert", err, 1,
		slog.Int("count", count),
		slog.Duration("duration", d),
	)
}

// LogKNN logs a kNN or range query.
func (l *Logger) LogKNN(ctx context.Context, id model.ID, k, results int, err error) {
	l.outcome(ctx, slog.LevelDebug, "knn query", err, 2,
		slog.Any("id", id),
		slog.Int("k", k),
		slog.Int("results", results),
	)
}

// LogRkNN logs a reverse kNN query with its filter and refinement counts.
func (l *Logger) LogRkNN(ctx context.Context, id model.ID, k, candidates, refined, results int, err error) {
	l.outcome(ctx, slog.LevelDebug, "rknn query", err, 2,
		slog.Any("id", id),
		slog.Int("k", k),
		slog.Int("candidates", candidates),
		slog.Int("refined", refined),
		slog.Int("results", results),
	)
}

// LogAdjust logs a repair of pending bounds.
func (l *Logger) LogAdjust(ctx context.Context, repaired int, err error) {
	l.outcome(ctx, slog.LevelInfo, "bound adjustment", err, 0, slog.Int("repaired", repaired))
}

// LogSnapshot logs a snapshot save or restore; op is "save" or "restore".
func (l *Logger) LogSnapshot(ctx context.Context, op, name string, err error) {
	l.outcome(ctx, slog.LevelInfo, "snapshot", err, 2,
		slog.String("op", op),
		slog.String("name", name),
	)
}
