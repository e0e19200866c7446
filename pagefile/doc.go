// Package pagefile provides fixed-size page storage for the tree.
//
// A PageFile addresses pages by PageID. Page 0 holds the tree header and
// page 1 the root node; every other page holds one node.
//
// # Implementations
//
//   - MemoryFile: a growable slab in memory
//   - DiskFile: a file accessed with positional IO, optionally throttled
//   - MappedFile: a read-only memory mapping of a DiskFile's file
//
// All implementations are safe for concurrent use.
package pagefile
