package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "SELECT"},
		{"\n  UPDATE bot_stats SET servers = $1", "UPDATE"},
		{"insert into incidents", "INSERT"},
		{"", "unknown"},
		{"   ", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), "sql %q", tt.sql)
	}
}

func TestMetricsTracer_RecordsDurationAndErrors(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	clock := clockwork.NewFakeClock()
	tracer := NewMetricsTracer(m, clock)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	clock.Advance(20 * time.Millisecond)
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "UPDATE x"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("SELECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("UPDATE")))
}

func TestMetricsTracer_EndWithoutStartIsIgnored(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	tracer := NewMetricsTracer(m, clockwork.NewFakeClock())

	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, 0, testutil.CollectAndCount(m.ErrorsTotal))
}
