package buffer_pool

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for buffer pool activity.
type Metrics struct {
	FetchesCounter   metric.Int64Counter
	HitsCounter      metric.Int64Counter
	MissesCounter    metric.Int64Counter
	EvictionsCounter metric.Int64Counter
	FlushesCounter   metric.Int64Counter
	CorruptedCounter metric.Int64Counter
}

// NewMetrics creates and registers the buffer pool metrics. Pass the meter
// from pkg/telemetry; the noop meter it returns when telemetry is disabled
// works here too.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	fetchesCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.fetches_total",
		metric.WithDescription("Total number of page fetch requests."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	hitsCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.hits_total",
		metric.WithDescription("Fetches served from a resident frame."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	missesCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.misses_total",
		metric.WithDescription("Fetches that had to read the page from disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictionsCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.evictions_total",
		metric.WithDescription("Resident pages evicted to make room."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	flushesCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.flushes_total",
		metric.WithDescription("Dirty pages written back to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	corruptedCounter, err := meter.Int64Counter(
		"tatami.buffer_pool.corrupted_pages_total",
		metric.WithDescription("Pages that failed to parse when accessed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		FetchesCounter:   fetchesCounter,
		HitsCounter:      hitsCounter,
		MissesCounter:    missesCounter,
		EvictionsCounter: evictionsCounter,
		FlushesCounter:   flushesCounter,
		CorruptedCounter: corruptedCounter,
	}, nil
}
