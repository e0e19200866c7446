package blobstore

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrAborted is the error an UploadFunc sees when a pipe writer is aborted.
var ErrAborted = errors.New("blobstore: write aborted")

// RangeFunc fetches the inclusive byte range [first, last] of an object.
type RangeFunc func(ctx context.Context, first, last int64) (io.ReadCloser, error)

// NewRangedBlob returns a Blob of size bytes whose reads are served by
// ranged fetches, one per call.
func NewRangedBlob(size int64, fetch RangeFunc) Blob {
	return &rangedBlob{size: size, fetch: fetch}
}

type rangedBlob struct {
	size  int64
	fetch RangeFunc
}

func (b *rangedBlob) Size() int64 { return b.size }

func (b *rangedBlob) Close() error { return nil }

func (b *rangedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := min(int64(len(p)), b.size-off)
	body, err := b.fetch(ctx, off, off+want-1)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *rangedBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= b.size {
		return nil, io.EOF
	}
	if length <= 0 {
		return io.NopCloser(eofReader{}), nil
	}
	return b.fetch(ctx, off, min(off+length, b.size)-1)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// UploadFunc reads r to EOF and commits the blob. When reading r fails it
// must return that error and commit nothing.
type UploadFunc func(ctx context.Context, r io.Reader) error

// NewPipeWriter returns a WritableBlob whose writes stream into upload,
// which runs in its own goroutine. Close waits for upload to commit; Abort
// fails the stream with ErrAborted and cancels upload's context.
func NewPipeWriter(ctx context.Context, upload UploadFunc) WritableBlob {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	w := &pipeWriter{pw: pw, cancel: cancel, done: make(chan error, 1)}

	go func() {
		err := upload(ctx, pr)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

type pipeWriter struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error

	mu       sync.Mutex
	finished bool
	err      error
}

func (w *pipeWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

// Sync is a no-op; data is committed on Close.
func (w *pipeWriter) Sync() error { return nil }

func (w *pipeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return w.err
	}
	w.finished = true

	_ = w.pw.Close()
	w.err = <-w.done
	w.cancel()
	return w.err
}

func (w *pipeWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return nil
	}
	w.finished = true

	_ = w.pw.CloseWithError(ErrAborted)
	w.cancel()
	<-w.done
	w.err = ErrAborted
	return nil
}
