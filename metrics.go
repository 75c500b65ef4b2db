package rangecache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordRead is called after each Read, ReadRange, or ReadAt.
	// bytes is the number of bytes returned, err is nil if successful.
	RecordRead(bytes int, duration time.Duration, err error)

	// RecordBlockFetch is called for every block a read needs.
	// hit reports whether the block came from the cache; for a miss,
	// duration covers the backend read.
	RecordBlockFetch(hit bool, bytes int, duration time.Duration, err error)

	// RecordOpen is called after each backend open.
	RecordOpen(duration time.Duration, err error)

	// RecordClose is called after each backend handle disposal.
	RecordClose(duration time.Duration, err error)

	// RecordDisconnect is called once per Manager, after the teardown sweep.
	// files is the number of tracked files closed, failed those that errored.
	RecordDisconnect(files, failed int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(int, time.Duration, error)             {}
func (NoopMetricsCollector) RecordBlockFetch(bool, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordOpen(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordClose(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordDisconnect(int, int, time.Duration)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadBytes       atomic.Int64
	ReadTotalNanos  atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	FetchErrors     atomic.Int64
	FetchBytes      atomic.Int64
	FetchTotalNanos atomic.Int64
	OpenCount       atomic.Int64
	OpenErrors      atomic.Int64
	CloseCount      atomic.Int64
	CloseErrors     atomic.Int64
	Disconnects     atomic.Int64
	DisconnectFiles atomic.Int64
	DisconnectFails atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(bytes int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
		return
	}
	b.ReadBytes.Add(int64(bytes))
}

// RecordBlockFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBlockFetch(hit bool, bytes int, duration time.Duration, err error) {
	if hit {
		b.CacheHits.Add(1)
		return
	}
	b.CacheMisses.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
		return
	}
	b.FetchBytes.Add(int64(bytes))
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordClose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClose(_ time.Duration, err error) {
	b.CloseCount.Add(1)
	if err != nil {
		b.CloseErrors.Add(1)
	}
}

// RecordDisconnect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDisconnect(files, failed int, _ time.Duration) {
	b.Disconnects.Add(1)
	b.DisconnectFiles.Add(int64(files))
	b.DisconnectFails.Add(int64(failed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:       b.ReadCount.Load(),
		ReadErrors:      b.ReadErrors.Load(),
		ReadBytes:       b.ReadBytes.Load(),
		ReadAvgNanos:    avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		CacheHits:       b.CacheHits.Load(),
		CacheMisses:     b.CacheMisses.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchBytes:      b.FetchBytes.Load(),
		FetchAvgNanos:   avg(b.FetchTotalNanos.Load(), b.CacheMisses.Load()),
		OpenCount:       b.OpenCount.Load(),
		OpenErrors:      b.OpenErrors.Load(),
		CloseCount:      b.CloseCount.Load(),
		CloseErrors:     b.CloseErrors.Load(),
		Disconnects:     b.Disconnects.Load(),
		DisconnectFiles: b.DisconnectFiles.Load(),
		DisconnectFails: b.DisconnectFails.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount       int64
	ReadErrors      int64
	ReadBytes       int64
	ReadAvgNanos    int64
	CacheHits       int64
	CacheMisses     int64
	FetchErrors     int64
	FetchBytes      int64
	FetchAvgNanos   int64
	OpenCount       int64
	OpenErrors      int64
	CloseCount      int64
	CloseErrors     int64
	Disconnects     int64
	DisconnectFiles int64
	DisconnectFails int64
}

// HitRatio returns CacheHits / (CacheHits + CacheMisses).
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}
