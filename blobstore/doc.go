// Package blobstore stores named, immutable blobs. Index snapshots are
// written to and restored from a BlobStore.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and short-lived snapshots
//   - LocalStore: a directory; reads are memory-mapped, writes are atomic renames
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Implement BlobStore to plug in another backend:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Remote backends build their blobs from NewRangedBlob, which turns ranged
// fetches into ReadAt and ReadRange, and NewPipeWriter, which streams writes
// into an upload running in its own goroutine and supports Abort.
package blobstore
