// Package distance provides the distance oracle consumed by the index and a
// small catalog of metrics over float64 vectors.
//
// The index only ever asks for distances between object ids. An Oracle turns
// a model.Relation and a Func into that id based view:
//
//	rel := model.NewSliceRelation(points)
//	oracle := distance.NewOracle(rel, distance.Euclidean)
//	d := oracle.Distance(0, 1)
//
// # Supported Metrics
//
//   - MetricEuclidean: L2 distance (default)
//   - MetricManhattan: L1 distance
//   - MetricChebyshev: L-infinity distance
//
// Every function must be symmetric and satisfy the triangle inequality,
// otherwise tree pruning returns wrong answers.
package distance
