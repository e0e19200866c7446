// Package snapshot copies the pages of an M-tree page file into a single
// blob and back.
//
// A snapshot is a fixed header followed by an optional roaring bitmap of the
// indexed object ids and the pages, written as compressed blocks. Both
// sections are covered by CRC32C checksums stored in the header, so a
// truncated or corrupted blob is rejected on Load.
//
// Snapshots go through a blobstore.BlobStore, so the same code writes to
// local disk, memory, S3 or MinIO.
package snapshot
