package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	dbMeterName = "practice-api/database"

	metricDBCalls    = "db.client.calls"
	metricDBDuration = "db.client.operation.duration"
	metricPoolActive = "db.connection.pool.active"
	metricPoolIdle   = "db.connection.pool.idle"
	metricPoolTotal  = "db.connection.pool.total"

	attrDBSystem     = "db.system"
	attrDBOperation  = "db.operation.name"
	attrDBCollection = "db.collection.name"
	attrError        = "error"
)

// Table names follow the verb; schema qualifiers and quotes are skipped.
var (
	selectTableRegex = regexp.MustCompile(`(?i)FROM\s+(?:"?\w+"?\.)?"?(\w+)"?`)
	insertTableRegex = regexp.MustCompile(`(?i)INSERT\s+INTO\s+(?:"?\w+"?\.)?"?(\w+)"?`)
	updateTableRegex = regexp.MustCompile(`(?i)UPDATE\s+(?:"?\w+"?\.)?"?(\w+)"?`)
	deleteTableRegex = regexp.MustCompile(`(?i)DELETE\s+FROM\s+(?:"?\w+"?\.)?"?(\w+)"?`)
)

// QueryMetrics records one call and its duration per executed statement.
type QueryMetrics struct {
	system   string
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewQueryMetrics creates the statement instruments on mp. system is the
// db.system attribute, such as "postgresql".
func NewQueryMetrics(mp metric.MeterProvider, system string) (*QueryMetrics, error) {
	meter := mp.Meter(dbMeterName)
	calls, err := meter.Int64Counter(
		metricDBCalls,
		metric.WithDescription("Total number of database client calls"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		metricDBDuration,
		metric.WithDescription("Duration of database operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &QueryMetrics{system: system, calls: calls, duration: duration}, nil
}

// Record observes query. An empty result (sql.ErrNoRows) is not an error.
// A nil receiver records nothing.
func (m *QueryMetrics) Record(ctx context.Context, query string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, m.system),
		attribute.String(attrDBOperation, Operation(query)),
		attribute.String(attrDBCollection, TableOf(query)),
	}
	ctx = context.WithoutCancel(ctx)
	m.duration.Record(ctx, float64(elapsed.Nanoseconds())/1e6, metric.WithAttributes(attrs...))

	failed := err != nil && !errors.Is(err, sql.ErrNoRows)
	m.calls.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Bool(attrError, failed))...))
}

// Operation returns the lower-cased leading SQL verb of query.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// TableOf returns the primary table of a DML statement, or "unknown".
func TableOf(query string) string {
	var pattern *regexp.Regexp
	switch Operation(query) {
	case "select":
		pattern = selectTableRegex
	case "insert":
		pattern = insertTableRegex
	case "update":
		pattern = updateTableRegex
	case "delete":
		pattern = deleteTableRegex
	default:
		return "unknown"
	}
	if matches := pattern.FindStringSubmatch(query); len(matches) > 1 {
		return strings.ToLower(matches[1])
	}
	return "unknown"
}

// RegisterPoolMetrics reports pool usage from stats, the map returned by
// Interface.Stats, on every collection. Unregister the result on close.
func RegisterPoolMetrics(mp metric.MeterProvider, system string, stats func() (map[string]any, error)) (metric.Registration, error) {
	meter := mp.Meter(dbMeterName)
	active, err := meter.Int64ObservableGauge(metricPoolActive, metric.WithDescription("Connections currently in use"))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge(metricPoolIdle, metric.WithDescription("Idle connections in the pool"))
	if err != nil {
		return nil, err
	}
	total, err := meter.Int64ObservableGauge(metricPoolTotal, metric.WithDescription("Maximum open connections configured"))
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String(attrDBSystem, system))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s, err := stats()
		if err != nil {
			return nil
		}
		o.ObserveInt64(active, asInt64(s["in_use"]), attrs)
		o.ObserveInt64(idle, asInt64(s["idle"]), attrs)
		o.ObserveInt64(total, asInt64(s["max_open_connections"]), attrs)
		return nil
	}, active, idle, total)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
