// Package model defines core types used throughout mkmax.
//
// # Identity Types
//
//   - ID: Object identifier inside a Relation (uint32)
//
// # Data Types
//
//   - Neighbor: Query result with ID and distance
//   - Relation: Read-only id -> object lookup consumed by the index
//
// # Relations
//
// SliceRelation is the simplest Relation, backed by a dense slice:
//
//	rel := model.NewSliceRelation([][]float64{{0, 0}, {1, 1}})
//	obj, ok := rel.Get(1)
package model
