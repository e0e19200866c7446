// Package minio stores snapshots in MinIO or another S3-compatible server
// through minio-go, without the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//		return err
//	}
//	store := minioblob.NewStore(client, "indexes", "trees/")
//	info, err := idx.Snapshot(ctx, store, "tree.snap")
package minio
