// Package cache provides the LRU cache that keeps decoded tree nodes in
// front of the page file.
//
// Key features:
//   - Generic over key and value, with a per-value cost function
//   - Single mutex, hit/miss counters readable without locking
//   - Integrated with the resource controller for memory limits
package cache
