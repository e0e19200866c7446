package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mkmax/blobstore"
	"github.com/hupe1980/mkmax/pagefile"
	"github.com/hupe1980/mkmax/snapshot"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newTestStore connects to MINIO_ENDPOINT and skips when no server answers.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	client, err := minio.New(getenv("MINIO_ENDPOINT", "localhost:9000"), &minio.Options{
		Creds: credentials.NewStaticV4(getenv("MINIO_ACCESS_KEY", "minioadmin"), getenv("MINIO_SECRET_KEY", "minioadmin"), ""),
	})
	if err != nil {
		t.Skipf("minio client: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("minio not available: %v", err)
	}

	const bucket = "mkmax-test"
	exists, err := client.BucketExists(t.Context(), bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(t.Context(), bucket, minio.MakeBucketOptions{}))
	}
	return NewStore(client, bucket, fmt.Sprintf("run-%d/", time.Now().UnixNano()), WithPartSize(5<<20))
}

func TestStore_Blobs(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "plain.bin", data))

	blob, err := store.Open(ctx, "plain.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	all, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	rc, err := blob.ReadRange(ctx, 6, 5)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "minio", string(part))
	require.NoError(t, blob.Close())

	require.NoError(t, store.Delete(ctx, "plain.bin"))
	require.NoError(t, store.Delete(ctx, "plain.bin"))
	_, err = store.Open(ctx, "plain.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Snapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	src := pagefile.NewMemoryFile(256)
	for i := range 64 {
		id, err := src.AllocatePage()
		require.NoError(t, err)
		page := make([]byte, 256)
		page[i%256] = byte(i + 1)
		require.NoError(t, src.WritePage(id, page))
	}

	_, err := snapshot.Save(ctx, store, "trees/one.snap", src, snapshot.WithCompression(snapshot.CompressionZSTD))
	require.NoError(t, err)

	names, err := store.List(ctx, "trees/")
	require.NoError(t, err)
	assert.Equal(t, []string{"trees/one.snap"}, names)

	got, info, err := snapshot.Load(ctx, store, "trees/one.snap")
	require.NoError(t, err)
	assert.Equal(t, snapshot.CompressionZSTD, info.Compression)
	require.Equal(t, 64, got.NumPages())
	page, err := got.ReadPage(63)
	require.NoError(t, err)
	assert.Equal(t, byte(64), page[63])

	w, err := store.Create(ctx, "trees/aborted.snap")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, blobstore.Abort(w))
	_, err = store.Open(ctx, "trees/aborted.snap")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "trees/one.snap"))
}
