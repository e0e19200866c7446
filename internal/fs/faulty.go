package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by a Fault without its own Err.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how files matching a rule misbehave.
type Fault struct {
	// FailAfterBytes fails a write that would take the file past this many
	// written bytes. Negative disables the limit.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	FailOnRename   bool
	Err            error
}

func (f Fault) error() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type rule struct {
	substr string
	fault  Fault
}

// FaultyFS wraps a FileSystem and injects faults into files whose name
// contains a rule's substring. Later rules take precedence.
type FaultyFS struct {
	base FileSystem

	mu    sync.Mutex
	rules []rule
}

var _ FileSystem = (*FaultyFS)(nil)

// NewFaultyFS wraps base, or Default when base is nil.
func NewFaultyFS(base FileSystem) *FaultyFS {
	if base == nil {
		base = Default
	}
	return &FaultyFS{base: base}
}

// AddRule registers fault for names containing substr.
func (f *FaultyFS) AddRule(substr string, fault Fault) {
	f.mu.Lock()
	f.rules = append(f.rules, rule{substr: substr, fault: fault})
	f.mu.Unlock()
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(name, f.rules[i].substr) {
			return f.rules[i].fault, true
		}
	}
	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.base.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, ok := f.match(name)
	if !ok {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault, ok := f.match(newpath); ok && fault.FailOnRename {
		return fault.error()
	}
	return f.base.Rename(oldpath, newpath)
}

func (f *FaultyFS) Remove(name string) error                     { return f.base.Remove(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.base.MkdirAll(path, perm) }
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error)   { return f.base.ReadDir(name) }

type faultyFile struct {
	File
	fault Fault

	mu      sync.Mutex
	written int64
}

func (ff *faultyFile) account(n int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if limit := ff.fault.FailAfterBytes; limit >= 0 && ff.written+int64(n) > limit {
		return ff.fault.error()
	}
	ff.written += int64(n)
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.account(len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.account(len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.error()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fault.error()
	}
	return err
}
