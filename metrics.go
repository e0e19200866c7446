package mkmax

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems;
// promcollector provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordInsert is called after each single insert.
	RecordInsert(duration time.Duration, err error)

	// RecordBatchInsert is called after each InsertAll with the number of
	// ids in the batch.
	RecordBatchInsert(count int, duration time.Duration, err error)

	// RecordKNN is called after each kNN query.
	RecordKNN(k int, duration time.Duration, err error)

	// RecordRange is called after each range query with the result size.
	RecordRange(results int, duration time.Duration, err error)

	// RecordRkNN is called after each reverse kNN query. candidates is the
	// number of objects that passed the bound filter, results the size of
	// the answer.
	RecordRkNN(k, candidates, results int, duration time.Duration, err error)

	// RecordAdjust is called after each Adjust with the number of repaired bounds.
	RecordAdjust(repaired int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)              {}
func (NoopMetricsCollector) RecordBatchInsert(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordKNN(int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordRange(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordRkNN(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordAdjust(int, time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount       atomic.Int64
	InsertErrors      atomic.Int64
	InsertTotalNanos  atomic.Int64
	BatchInsertCount  atomic.Int64
	BatchInsertItems  atomic.Int64
	BatchInsertErrors atomic.Int64
	KNNCount          atomic.Int64
	KNNErrors         atomic.Int64
	KNNTotalNanos     atomic.Int64
	RangeCount        atomic.Int64
	RangeErrors       atomic.Int64
	RkNNCount         atomic.Int64
	RkNNErrors        atomic.Int64
	RkNNTotalNanos    atomic.Int64
	RkNNCandidates    atomic.Int64
	RkNNResults       atomic.Int64
	AdjustCount       atomic.Int64
	AdjustRepaired    atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count int, _ time.Duration, err error) {
	b.BatchInsertCount.Add(1)
	b.BatchInsertItems.Add(int64(count))
	if err != nil {
		b.BatchInsertErrors.Add(1)
	}
}

// RecordKNN implements MetricsCollector.
func (b *BasicMetricsCollector) RecordKNN(_ int, duration time.Duration, err error) {
	b.KNNCount.Add(1)
	b.KNNTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.KNNErrors.Add(1)
	}
}

// RecordRange implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRange(_ int, _ time.Duration, err error) {
	b.RangeCount.Add(1)
	if err != nil {
		b.RangeErrors.Add(1)
	}
}

// RecordRkNN implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRkNN(_, candidates, results int, duration time.Duration, err error) {
	b.RkNNCount.Add(1)
	b.RkNNTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RkNNErrors.Add(1)
		return
	}
	b.RkNNCandidates.Add(int64(candidates))
	b.RkNNResults.Add(int64(results))
}

// RecordAdjust implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdjust(repaired int, _ time.Duration, err error) {
	b.AdjustCount.Add(1)
	if err == nil {
		b.AdjustRepaired.Add(int64(repaired))
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:       b.InsertCount.Load(),
		InsertErrors:      b.InsertErrors.Load(),
		InsertAvgNanos:    avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		BatchInsertCount:  b.BatchInsertCount.Load(),
		BatchInsertItems:  b.BatchInsertItems.Load(),
		BatchInsertErrors: b.BatchInsertErrors.Load(),
		KNNCount:          b.KNNCount.Load(),
		KNNErrors:         b.KNNErrors.Load(),
		KNNAvgNanos:       avg(b.KNNTotalNanos.Load(), b.KNNCount.Load()),
		RangeCount:        b.RangeCount.Load(),
		RangeErrors:       b.RangeErrors.Load(),
		RkNNCount:         b.RkNNCount.Load(),
		RkNNErrors:        b.RkNNErrors.Load(),
		RkNNAvgNanos:      avg(b.RkNNTotalNanos.Load(), b.RkNNCount.Load()),
		RkNNCandidates:    b.RkNNCandidates.Load(),
		RkNNResults:       b.RkNNResults.Load(),
		AdjustCount:       b.AdjustCount.Load(),
		AdjustRepaired:    b.AdjustRepaired.Load(),
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
	InsertCount       int64
	InsertErrors      int64
	InsertAvgNanos    int64
	BatchInsertCount  int64
	BatchInsertItems  int64
	BatchInsertErrors int64
	KNNCount          int64
	KNNErrors         int64
	KNNAvgNanos       int64
	RangeCount        int64
	RangeErrors       int64
	RkNNCount         int64
	RkNNErrors        int64
	RkNNAvgNanos      int64
	RkNNCandidates    int64
	RkNNResults       int64
	AdjustCount       int64
	AdjustRepaired    int64
}

// CandidateRatio returns the average number of RkNN candidates per result,
// or 0 before the first non-empty answer.
func (s BasicMetricsStats) CandidateRatio() float64 {
	if s.RkNNResults == 0 {
		return 0
	}
	return float64(s.RkNNCandidates) / float64(s.RkNNResults)
}
