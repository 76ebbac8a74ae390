package postgres

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	descAcquired = prometheus.NewDesc("pg_pool_acquired_conns", "Connections currently checked out.", nil, nil)
	descIdle     = prometheus.NewDesc("pg_pool_idle_conns", "Idle connections in the pool.", nil, nil)
	descTotal    = prometheus.NewDesc("pg_pool_total_conns", "All connections owned by the pool.", nil, nil)
	descWaits    = prometheus.NewDesc("pg_pool_empty_acquire_total", "Acquires that had to wait for a connection.", nil, nil)
)

type poolCollector struct{ db *DB }

func (c poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descAcquired
	ch <- descIdle
	ch <- descTotal
	ch <- descWaits
}

func (c poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Pool.Stat()
	ch <- prometheus.MustNewConstMetric(descAcquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(descIdle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(descTotal, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(descWaits, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
}

// RegisterMetrics exposes pool stats. Registering a second pool in the same process is a no-op.
func (db *DB) RegisterMetrics(reg prometheus.Registerer) error {
	err := reg.Register(poolCollector{db: db})
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}
