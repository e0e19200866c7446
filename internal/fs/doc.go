// Package fs is the file system seam under page files and the local blob
// store.
//
// Production code uses [Default], which forwards to the os package. Tests
// wrap it in a [FaultyFS] to fail writes, syncs, closes or renames of
// chosen files:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".pages", fs.Fault{FailAfterBytes: 4096})
//
// Operations take no context.Context; they are not interruptible at the
// syscall level.
package fs
