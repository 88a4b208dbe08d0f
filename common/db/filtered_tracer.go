package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FilteredTracer wraps a pgx tracer and drops trace events for queries
// touching one table. Used to keep the deploy-log writer from tracing
// its own inserts.
type FilteredTracer struct {
	inner     pgx.QueryTracer
	skipTable string
}

func NewFilteredTracer(inner pgx.QueryTracer, skipTable string) *FilteredTracer {
	return &FilteredTracer{inner: inner, skipTable: skipTable}
}

// skipCtxKey marks a query as skipped between start and end callbacks.
type skipCtxKey struct{}

func (t *FilteredTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if strings.Contains(strings.ToLower(data.SQL), strings.ToLower(t.skipTable)) {
		return context.WithValue(ctx, skipCtxKey{}, true)
	}

	return t.inner.TraceQueryStart(ctx, conn, data)
}

func (t *FilteredTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if ctx.Value(skipCtxKey{}) != nil {
		return
	}

	// The command tag is checked as well in case the marked context was
	// not the one propagated to the end callback.
	if strings.Contains(strings.ToLower(data.CommandTag.String()), strings.ToLower(t.skipTable)) {
		return
	}

	t.inner.TraceQueryEnd(ctx, conn, data)
}
