// Package mkmax provides a paged MkMax tree: a metric index answering
// k-nearest-neighbor (kNN) and reverse k-nearest-neighbor (RkNN) queries
// over objects of an arbitrary metric space.
//
// The index stores object ids only. Objects are resolved through a
// model.Relation and compared with a distance.Func, which must be symmetric
// and satisfy the triangle inequality. For a fixed k_max the tree keeps, for
// every object and every subtree, an upper bound on the distance to the
// k_max-th nearest neighbor. Reverse kNN queries use these bounds to prune
// whole subtrees and only refine the remaining candidates with exact kNN
// queries.
//
// # Quick Start
//
//	points := [][]float64{{0, 0}, {1, 0}, {0, 1}, {5, 5}}
//	rel := model.NewSliceRelation(points)
//
//	idx, err := mkmax.New(rel, distance.Euclidean, 2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	_ = idx.InsertAll(ctx, rel.IDs())
//	knn, _ := idx.KNNQuery(ctx, 0, 2)
//	rknn, _ := idx.ReverseKNNQuery(ctx, 3, 2)
//
// # Storage
//
// Nodes live in fixed-size pages. By default pages are kept in memory;
// WithPath stores them in a file that Open reopens later, and OpenReadOnly
// maps such a file read-only. The page size determines the node fan-out.
//
// Snapshots copy all pages into a single blob of a blobstore.BlobStore
// (local disk, memory, S3 or MinIO) and Restore reads them back.
//
// # Bounds
//
// Insert keeps every bound exact. InsertAll inserts a batch first and
// recomputes all affected bounds once afterwards. While fewer than k_max+1
// objects are indexed, bounds are undefined and every RkNN candidate is
// verified; Pending reports how many objects are in that state.
//
// Deletion is not supported.
package mkmax
