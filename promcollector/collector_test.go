package promcollector

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mkmax"
	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func sampleCount(f *dto.MetricFamily, labels map[string]string) uint64 {
	var n uint64
	for _, m := range f.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			n += m.GetHistogram().GetSampleCount()
		}
	}
	return n
}

func TestCollector_RecordsIndexOperations(t *testing.T) {
	ctx := t.Context()
	reg := prometheus.NewRegistry()
	c, err := New(reg, WithConstLabels(prometheus.Labels{"index": "points"}))
	require.NoError(t, err)

	points := make([][]float64, 40)
	for i := range points {
		points[i] = []float64{float64(i % 7), float64(i / 7)}
	}
	rel := model.NewSliceRelation(points)
	idx, err := mkmax.New(rel, distance.Euclidean, 3, mkmax.WithMetricsCollector(c))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, RegisterIndex(reg, idx, prometheus.Labels{"index": "points"}))

	require.NoError(t, idx.InsertAll(ctx, rel.IDs()[:30]))
	require.NoError(t, idx.Insert(ctx, 35))
	require.Error(t, idx.Insert(ctx, 35))

	for q := range model.ID(5) {
		_, err := idx.ReverseKNNQuery(ctx, q, 3)
		require.NoError(t, err)
	}
	_, err = idx.RangeQuery(ctx, 0, 2)
	require.NoError(t, err)
	_, err = idx.Adjust(ctx)
	require.NoError(t, err)

	assert.Equal(t, 31.0, testutil.ToFloat64(c.inserted))
	assert.Zero(t, testutil.ToFloat64(c.repaired), "no pending bounds after InsertAll")

	latency := gather(t, reg, "mkmax_operation_latency_seconds")
	assert.Equal(t, uint64(5), sampleCount(latency, map[string]string{"op": "rknn"}))
	assert.Equal(t, uint64(1), sampleCount(latency, map[string]string{"op": "insert", "status": "error"}))
	assert.Equal(t, uint64(1), sampleCount(latency, map[string]string{"op": "insert_all", "status": "success"}))

	candidates := gather(t, reg, "mkmax_rknn_candidates")
	assert.Equal(t, uint64(5), sampleCount(candidates, nil))

	objects := gather(t, reg, "mkmax_objects")
	require.Len(t, objects.GetMetric(), 1)
	assert.Equal(t, 31.0, objects.GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, "index", objects.GetMetric()[0].GetLabel()[0].GetName())

	pending := gather(t, reg, "mkmax_pending_bounds")
	assert.Zero(t, pending.GetMetric()[0].GetGauge().GetValue())
}

func TestCollector_DirectCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, WithBuckets([]float64{0.001, 0.01, 0.1}))
	require.NoError(t, err)

	c.RecordBatchInsert(10, time.Millisecond, nil)
	c.RecordBatchInsert(5, time.Millisecond, errors.New("boom"))
	c.RecordAdjust(7, time.Millisecond, nil)
	c.RecordKNN(3, 2*time.Millisecond, nil)
	c.RecordRkNN(3, 12, 4, time.Millisecond, nil)
	c.RecordRkNN(3, 0, 0, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 10.0, testutil.ToFloat64(c.inserted))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.repaired))
	assert.Equal(t, 6, testutil.CollectAndCount(c.opLatency), "one series per op and status")

	candidates := gather(t, reg, "mkmax_rknn_candidates")
	h := candidates.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 12.0, h.GetSampleSum())
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}
