package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Metrics holds the statement collectors shared by instrumented executors.
type Metrics struct {
	Statements *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the statement collectors. Collectors that
// are already registered are reused.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	statements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sql",
		Name:      "statements_total",
		Help:      "Statements executed, by verb and outcome.",
	}, []string{"verb", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sql",
		Name:      "statement_duration_seconds",
		Help:      "Statement latency, by verb.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"verb"})

	m := &Metrics{}
	c, err := register(reg, statements)
	if err != nil {
		return nil, err
	}
	m.Statements = c.(*prometheus.CounterVec)

	c, err = register(reg, duration)
	if err != nil {
		return nil, err
	}
	m.Duration = c.(*prometheus.HistogramVec)
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

// Instrumented records counts and latency for every statement.
type Instrumented struct {
	next    core.Executor
	metrics *Metrics
}

// NewInstrumented wraps next.
func NewInstrumented(next core.Executor, metrics *Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (i *Instrumented) observe(query string, start time.Time, err error) {
	verb := statementVerb(query)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.metrics.Statements.WithLabelValues(verb, outcome).Inc()
	i.metrics.Duration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	n, err := i.next.Exec(ctx, query, args...)
	i.observe(query, start, err)
	return n, err
}

func (i *Instrumented) Query(ctx context.Context, query string, args []any, scan func(core.Row) error) error {
	start := time.Now()
	err := i.next.Query(ctx, query, args, scan)
	i.observe(query, start, err)
	return err
}

func (i *Instrumented) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) error {
	return i.next.WithTx(ctx, func(ctx context.Context, tx core.Executor) error {
		wrapped := &Instrumented{next: tx, metrics: i.metrics}
		return fn(core.ContextWithExecutor(ctx, wrapped), wrapped)
	})
}

func (i *Instrumented) Dialect() core.Dialect {
	return i.next.Dialect()
}

func statementVerb(query string) string {
	query = strings.TrimSpace(query)
	if idx := strings.IndexByte(query, ' '); idx > 0 {
		query = query[:idx]
	}
	return strings.ToLower(query)
}

// RegisterPoolMetrics exposes sql.DBStats of db as gauges.
func RegisterPoolMetrics(reg prometheus.Registerer, namespace string, db *sql.DB) error {
	gauges := []struct {
		name, help string
		value      func(sql.DBStats) float64
	}{
		{"open_connections", "Established connections, in use and idle.", func(s sql.DBStats) float64 { return float64(s.OpenConnections) }},
		{"in_use_connections", "Connections currently in use.", func(s sql.DBStats) float64 { return float64(s.InUse) }},
		{"idle_connections", "Idle connections.", func(s sql.DBStats) float64 { return float64(s.Idle) }},
		{"wait_count", "Total connections waited for.", func(s sql.DBStats) float64 { return float64(s.WaitCount) }},
		{"max_open_connections", "Configured connection limit.", func(s sql.DBStats) float64 { return float64(s.MaxOpenConnections) }},
	}
	for _, g := range gauges {
		value := g.value
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sql_pool",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return value(db.Stats()) })
		if _, err := register(reg, gauge); err != nil {
			return err
		}
	}
	return nil
}
