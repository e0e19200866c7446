// Package mtree implements a paged MkMax tree: an M-tree whose entries carry
// an upper bound on the distance to the k_max-th nearest neighbor of every
// object below them.
//
// The bounds are maintained on insertion (preInsert) and by bulk adjustment
// after batch insertion. Reverse kNN queries use them, together with covering
// radii and parent distances, to prune subtrees that cannot contain an object
// having the query among its k nearest neighbors.
//
// A Tree is not safe for concurrent mutation. Queries may run concurrently
// with each other once no mutation is in flight.
package mtree
