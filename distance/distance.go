package distance

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/hupe1980/mkmax/model"
)

const (
	// Null is the additive identity of distances, used as seed for max.
	Null = 0.0
	// Size is the serialized size of one distance value in bytes.
	Size = 8
)

// Infinite is the "no neighbor yet" distance.
var Infinite = math.Inf(1)

// IsUndefined reports whether d carries no usable bound.
func IsUndefined(d float64) bool {
	return math.IsInf(d, 1) || math.IsNaN(d)
}

// Oracle answers distance requests between object ids.
type Oracle interface {
	Distance(a, b model.ID) float64
}

// Func computes the distance between two objects.
type Func[O any] func(a, b O) float64

// RelationOracle resolves ids against a relation and applies a Func.
type RelationOracle[O any] struct {
	rel model.Relation[O]
	fn  Func[O]
}

// NewOracle returns an Oracle over rel using fn.
func NewOracle[O any](rel model.Relation[O], fn Func[O]) *RelationOracle[O] {
	return &RelationOracle[O]{rel: rel, fn: fn}
}

// Distance returns fn(rel[a], rel[b]), or Infinite when either id is unknown.
func (o *RelationOracle[O]) Distance(a, b model.ID) float64 {
	x, ok := o.rel.Get(a)
	if !ok {
		return Infinite
	}
	if a == b {
		return Null
	}
	y, ok := o.rel.Get(b)
	if !ok {
		return Infinite
	}
	return o.fn(x, y)
}

// Counting wraps an Oracle and counts computations.
type Counting struct {
	Oracle
	n atomic.Int64
}

// NewCounting wraps o.
func NewCounting(o Oracle) *Counting {
	return &Counting{Oracle: o}
}

// Distance forwards to the wrapped oracle.
func (c *Counting) Distance(a, b model.ID) float64 {
	c.n.Add(1)
	return c.Oracle.Distance(a, b)
}

// Count returns the number of computations so far.
func (c *Counting) Count() int64 { return c.n.Load() }

// Reset zeroes the counter.
func (c *Counting) Reset() { c.n.Store(0) }

// Euclidean returns the L2 distance. Vectors must have equal length.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Manhattan returns the L1 distance.
func Manhattan(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// Chebyshev returns the maximum coordinate difference.
func Chebyshev(a, b []float64) float64 {
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

// Metric names a catalog function.
type Metric int

const (
	MetricEuclidean Metric = iota
	MetricManhattan
	MetricChebyshev
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "Euclidean"
	case MetricManhattan:
		return "Manhattan"
	case MetricChebyshev:
		return "Chebyshev"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func[[]float64], error) {
	switch m {
	case MetricEuclidean:
		return Euclidean, nil
	case MetricManhattan:
		return Manhattan, nil
	case MetricChebyshev:
		return Chebyshev, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
