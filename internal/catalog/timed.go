package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/roach88/vsptd/internal/store"
)

// timed bounds each call with the call timeout and records its latency.
type timed struct {
	conn    store.Conn
	timeout time.Duration
	record  CallObserver
}

func (t timed) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	ctx, cancel := deadline(ctx, t.timeout)
	defer cancel()
	defer observe(t.record, operation(query), time.Now())
	return t.conn.QueryRows(ctx, query, args...)
}

func (t timed) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := deadline(ctx, t.timeout)
	defer cancel()
	defer observe(t.record, operation(query), time.Now())
	return t.conn.Exec(ctx, query, args...)
}

func deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func observe(record CallObserver, op string, start time.Time) {
	if record != nil {
		record(op, time.Since(start))
	}
}

// operation names a statement for metrics: select, count, insert, delete,
// or the statement's first keyword.
func operation(query string) string {
	if strings.HasPrefix(query, "SELECT COUNT(") {
		return "count"
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
