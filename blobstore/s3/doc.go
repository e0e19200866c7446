// Package s3 provides an S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	info, err := idx.Snapshot(ctx, store, "tree.snap")
//
// Objects are read with ranged GETs. Create streams through a multipart
// upload; Put sends one request with a CRC32C checksum.
package s3
