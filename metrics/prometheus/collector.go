// Package prometheus exports rangecache metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is a rangecache.MetricsCollector backed by Prometheus metrics.
type Collector struct {
	reads          *prometheus.CounterVec
	readDuration   prometheus.Histogram
	readBytes      prometheus.Histogram
	blockFetches   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	fetchBytes     prometheus.Counter
	opens          *prometheus.CounterVec
	closes         *prometheus.CounterVec
	disconnects    prometheus.Counter
	disconnectFail prometheus.Counter
}

var _ rangecache.MetricsCollector = (*Collector)(nil)

// New registers the rangecache metrics with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)

	return &Collector{
		reads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reads_total",
				Help:      "Total number of range reads by status",
			},
			[]string{"status"}, // "ok", "error"
		),
		readDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "read_duration_seconds",
				Help:      "Duration of range reads",
				Buckets: []float64{
					0.0001, // 100us - cache hits
					0.0005,
					0.001,
					0.005,
					0.01,
					0.05,
					0.1,
					0.5, // remote backends
					1,
				},
			},
		),
		readBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "read_bytes",
				Help:      "Distribution of bytes returned by range reads",
				Buckets:   prometheus.ExponentialBuckets(512, 4, 8), // 512B .. 8MB
			},
		),
		blockFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "block_fetches_total",
				Help:      "Total number of block lookups by result",
			},
			[]string{"result"}, // "hit", "miss", "error"
		),
		fetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_read_duration_seconds",
				Help:      "Duration of backend block reads on cache misses",
				Buckets:   prometheus.DefBuckets,
			},
		),
		fetchBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_read_bytes_total",
				Help:      "Total bytes read from the backend",
			},
		),
		opens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "opens_total",
				Help:      "Total number of backend opens by status",
			},
			[]string{"status"},
		),
		closes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closes_total",
				Help:      "Total number of backend closes by status",
			},
			[]string{"status"},
		),
		disconnects: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Total number of manager disconnects",
			},
		),
		disconnectFail: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnect_close_failures_total",
				Help:      "Total number of files that failed to close during a disconnect",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRead implements rangecache.MetricsCollector.
func (c *Collector) RecordRead(bytes int, duration time.Duration, err error) {
	c.reads.WithLabelValues(status(err)).Inc()
	c.readDuration.Observe(duration.Seconds())
	if err == nil {
		c.readBytes.Observe(float64(bytes))
	}
}

// RecordBlockFetch implements rangecache.MetricsCollector.
func (c *Collector) RecordBlockFetch(hit bool, bytes int, duration time.Duration, err error) {
	switch {
	case hit:
		c.blockFetches.WithLabelValues("hit").Inc()
	case err != nil:
		c.blockFetches.WithLabelValues("error").Inc()
		c.fetchDuration.Observe(duration.Seconds())
	default:
		c.blockFetches.WithLabelValues("miss").Inc()
		c.fetchDuration.Observe(duration.Seconds())
		c.fetchBytes.Add(float64(bytes))
	}
}

// RecordOpen implements rangecache.MetricsCollector.
func (c *Collector) RecordOpen(_ time.Duration, err error) {
	c.opens.WithLabelValues(status(err)).Inc()
}

// RecordClose implements rangecache.MetricsCollector.
func (c *Collector) RecordClose(_ time.Duration, err error) {
	c.closes.WithLabelValues(status(err)).Inc()
}

// RecordDisconnect implements rangecache.MetricsCollector.
func (c *Collector) RecordDisconnect(_, failed int, _ time.Duration) {
	c.disconnects.Inc()
	c.disconnectFail.Add(float64(failed))
}

// RegisterCacheStats exports the statistics of a block store as metrics
// that are sampled on every scrape.
func RegisterCacheStats(reg prometheus.Registerer, namespace string, sp cache.StatsProvider) {
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_size_bytes",
		Help:      "Bytes currently held by the block cache",
	}, func() float64 { return float64(sp.Stats().Size) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_capacity_bytes",
		Help:      "Byte capacity of the block cache",
	}, func() float64 { return float64(sp.Stats().Capacity) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Blocks currently held by the block cache",
	}, func() float64 { return float64(sp.Stats().Entries) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Total number of blocks evicted from the block cache",
	}, func() float64 { return float64(sp.Stats().Evictions) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_rejected_total",
		Help:      "Total number of blocks the block cache declined to store",
	}, func() float64 { return float64(sp.Stats().Rejected) })
}
