package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FilteredTracer forwards to inner except for statements touching skipTable.
// The log sink writes to crawler_logs, and tracing those inserts would log
// every log line twice.
type FilteredTracer struct {
	inner     pgx.QueryTracer
	skipTable string
}

func NewFilteredTracer(inner pgx.QueryTracer, skipTable string) *FilteredTracer {
	return &FilteredTracer{inner: inner, skipTable: strings.ToLower(skipTable)}
}

// skipCtxKey marks a query whose start was not traced.
type skipCtxKey struct{}

func (t *FilteredTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if strings.Contains(strings.ToLower(data.SQL), t.skipTable) {
		return context.WithValue(ctx, skipCtxKey{}, true)
	}
	return t.inner.TraceQueryStart(ctx, conn, data)
}

func (t *FilteredTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if ctx.Value(skipCtxKey{}) != nil {
		return
	}
	t.inner.TraceQueryEnd(ctx, conn, data)
}
