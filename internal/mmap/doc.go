// Package mmap maps files read-only into memory.
//
// Read-only page files and local snapshot blobs are served straight from
// the mapping, so page reads hit the kernel page cache without a copy.
// Unix systems use mmap(2) and madvise(2); Windows uses file mapping views
// and ignores access hints.
//
// A File is safe for concurrent reads. Close is idempotent, but slices
// returned by Bytes or Region must not be touched after Close.
package mmap
