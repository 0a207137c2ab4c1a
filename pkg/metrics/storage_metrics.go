package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cassandra query metrics, shared across repositories. Package-level since
// every service instance talks to the same message log.
var (
	cassandraQueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassandra_query_total",
		Help: "Total number of Cassandra queries executed",
	}, []string{"operation", "table", "status"})

	cassandraQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cassandra_query_duration_seconds",
		Help:    "Cassandra query latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation", "table"})
)

// RecordCassandraQuery records one query execution with its outcome
func RecordCassandraQuery(operation, table string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	cassandraQueryTotal.WithLabelValues(operation, table, status).Inc()
	cassandraQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
