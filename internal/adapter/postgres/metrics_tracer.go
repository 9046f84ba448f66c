package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
)

// MetricsTracer records query duration and errors per statement kind.
type MetricsTracer struct {
	metrics *metrics.DBMetrics
	clock   clockwork.Clock
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics, clock clockwork.Clock) *MetricsTracer {
	return &MetricsTracer{metrics: m, clock: clock}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	name  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{start: t.clock.Now(), name: queryName(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(qctx.name).Observe(t.clock.Since(qctx.start).Seconds())
	if data.Err != nil {
		t.metrics.ErrorsTotal.WithLabelValues(qctx.name).Inc()
	}
}

// queryName reduces SQL to its leading keyword to keep label cardinality low.
func queryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
