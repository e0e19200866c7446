// Package promcollector exports index metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/mkmax"
)

const namespace = "mkmax"

// Collector implements mkmax.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency  *prometheus.HistogramVec
	inserted   prometheus.Counter
	results    *prometheus.HistogramVec
	candidates prometheus.Histogram
	repaired   prometheus.Counter
}

var _ mkmax.MetricsCollector = (*Collector)(nil)

// Option configures a Collector.
type Option func(*options)

type options struct {
	buckets     []float64
	constLabels prometheus.Labels
}

// WithBuckets sets the latency histogram buckets in seconds.
// Default: prometheus.DefBuckets.
func WithBuckets(buckets []float64) Option {
	return func(o *options) { o.buckets = buckets }
}

// WithConstLabels attaches labels to every metric, e.g. the index name.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) { o.constLabels = labels }
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	o := options{buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "operation_latency_seconds",
			Help:        "Latency of index operations.",
			Buckets:     o.buckets,
			ConstLabels: o.constLabels,
		}, []string{"op", "status"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "inserted_objects_total",
			Help:        "Objects inserted successfully.",
			ConstLabels: o.constLabels,
		}),
		results: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "query_results",
			Help:        "Number of objects returned by a query.",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: o.constLabels,
		}, []string{"op"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "rknn_candidates",
			Help:        "Objects passing the bound filter of a reverse kNN query.",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: o.constLabels,
		}),
		repaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "repaired_bounds_total",
			Help:        "kNN distance bounds recomputed by Adjust.",
			ConstLabels: o.constLabels,
		}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.inserted, c.results, c.candidates, c.repaired} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// RecordInsert implements mkmax.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) {
	c.observe("insert", d, err)
	if err == nil {
		c.inserted.Inc()
	}
}

// RecordBatchInsert implements mkmax.MetricsCollector.
func (c *Collector) RecordBatchInsert(count int, d time.Duration, err error) {
	c.observe("insert_all", d, err)
	if err == nil {
		c.inserted.Add(float64(count))
	}
}

// RecordKNN implements mkmax.MetricsCollector.
func (c *Collector) RecordKNN(_ int, d time.Duration, err error) {
	c.observe("knn", d, err)
}

// RecordRange implements mkmax.MetricsCollector.
func (c *Collector) RecordRange(results int, d time.Duration, err error) {
	c.observe("range", d, err)
	if err == nil {
		c.results.WithLabelValues("range").Observe(float64(results))
	}
}

// RecordRkNN implements mkmax.MetricsCollector.
func (c *Collector) RecordRkNN(_, candidates, results int, d time.Duration, err error) {
	c.observe("rknn", d, err)
	if err == nil {
		c.candidates.Observe(float64(candidates))
		c.results.WithLabelValues("rknn").Observe(float64(results))
	}
}

// RecordAdjust implements mkmax.MetricsCollector.
func (c *Collector) RecordAdjust(repaired int, d time.Duration, err error) {
	c.observe("adjust", d, err)
	if err == nil {
		c.repaired.Add(float64(repaired))
	}
}

// Sizer is implemented by *mkmax.Index.
type Sizer interface {
	Len() int
	Pending() int
}

// RegisterIndex exports the size of idx and its number of pending bounds
// as gauges evaluated at scrape time.
func RegisterIndex(reg prometheus.Registerer, idx Sizer, constLabels prometheus.Labels) error {
	objects := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "objects",
		Help:        "Number of indexed objects.",
		ConstLabels: constLabels,
	}, func() float64 { return float64(idx.Len()) })
	pending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "pending_bounds",
		Help:        "Objects whose kNN distance bound is undefined or may be loose.",
		ConstLabels: constLabels,
	}, func() float64 { return float64(idx.Pending()) })

	if err := reg.Register(objects); err != nil {
		return err
	}
	return reg.Register(pending)
}
