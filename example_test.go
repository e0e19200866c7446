package mkmax_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/mkmax"
	"github.com/hupe1980/mkmax/blobstore"
	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
)

// Example demonstrates kNN and reverse kNN queries over 2-D points.
func Example() {
	ctx := context.Background()

	points := [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {1, 1}, // a unit square
		{10, 10}, // far away
	}
	rel := model.NewSliceRelation(points)

	idx, err := mkmax.New(rel, distance.Euclidean, 2)
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	if err := idx.InsertAll(ctx, rel.IDs()); err != nil {
		log.Fatal(err)
	}

	knn, err := idx.KNNQuery(ctx, 4, 2)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("nearest to the far point:", knn[0].ID, knn[1].ID)

	// Every corner has two neighbors at distance 1, so only the far point
	// itself has the far point among its 2 nearest neighbors.
	rknn, err := idx.ReverseKNNQuery(ctx, 4, 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range rknn {
		fmt.Printf("%d %.2f\n", n.ID, n.Distance)
	}
	// Output:
	// nearest to the far point: 4 3
	// 4 0.00
}

// Example_snapshot demonstrates saving an index to a blob store and
// restoring it.
func Example_snapshot() {
	ctx := context.Background()

	rel := model.NewSliceRelation([][]float64{{0}, {1}, {3}, {6}, {10}})
	idx, err := mkmax.New(rel, distance.Manhattan, 1)
	if err != nil {
		log.Fatal(err)
	}
	if err := idx.InsertAll(ctx, rel.IDs()); err != nil {
		log.Fatal(err)
	}

	store := blobstore.NewMemoryStore()
	if _, err := idx.Snapshot(ctx, store, "line.snap"); err != nil {
		log.Fatal(err)
	}
	_ = idx.Close()

	restored, err := mkmax.Restore(ctx, store, "line.snap", rel, distance.Manhattan)
	if err != nil {
		log.Fatal(err)
	}
	defer restored.Close()

	rknn, err := restored.ReverseKNNQuery(ctx, 2, 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(restored.Len(), rknn)
	// Output: 5 [Neighbor(2:0) Neighbor(3:3)]
}
