package mkmax

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mkmax/internal/mtree"
	"github.com/hupe1980/mkmax/pagefile"
)

var (
	// ErrInvalidKMax is returned when k_max is less than 1.
	ErrInvalidKMax = errors.New("k_max must be >= 1")

	// ErrUnknownObject is returned for ids the relation does not hold.
	ErrUnknownObject = errors.New("unknown object")

	// ErrDuplicate is returned when an object is inserted twice.
	ErrDuplicate = errors.New("object already indexed")

	// ErrNotImplemented is returned by operations the tree does not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("index closed")

	// ErrReadOnly is returned by mutations of an index opened read-only.
	ErrReadOnly = errors.New("index is read-only")

	// ErrHeaderMismatch is returned when a page file was written with other
	// parameters (page size, capacities, k_max) or is not empty on create.
	ErrHeaderMismatch = errors.New("page file header mismatch")

	// ErrCorrupt is returned when stored pages do not decode.
	ErrCorrupt = errors.New("corrupt page file")

	// ErrNoPageFile is returned by Open without WithPath or WithPageFile.
	ErrNoPageFile = errors.New("no page file configured")

	// ErrInvalidRadius is returned by RangeQuery for a negative radius.
	ErrInvalidRadius = errors.New("radius must be >= 0")
)

// ErrPageTooSmall indicates a page size whose node capacities are unusable.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrPageTooSmall struct {
	PageSize          int
	DirectoryCapacity int
	LeafCapacity      int
	cause             error
}

func (e *ErrPageTooSmall) Error() string {
	return fmt.Sprintf("page size %d too small: directory capacity %d, leaf capacity %d",
		e.PageSize, e.DirectoryCapacity, e.LeafCapacity)
}

func (e *ErrPageTooSmall) Unwrap() error { return e.cause }

// ErrInvalidK indicates a k outside [1, k_max].
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidK struct {
	K     int
	KMax  int
	cause error
}

func (e *ErrInvalidK) Error() string {
	return fmt.Sprintf("invalid k: %d (k_max %d)", e.K, e.KMax)
}

func (e *ErrInvalidK) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pts *mtree.PageTooSmallError
	if errors.As(err, &pts) {
		return &ErrPageTooSmall{PageSize: pts.PageSize, DirectoryCapacity: pts.Directory, LeafCapacity: pts.Leaf, cause: err}
	}
	var ik *mtree.InvalidKError
	if errors.As(err, &ik) {
		return &ErrInvalidK{K: ik.K, KMax: ik.KMax, cause: err}
	}

	switch {
	case errors.Is(err, mtree.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, mtree.ErrInvalidKMax):
		return fmt.Errorf("%w: %w", ErrInvalidKMax, err)
	case errors.Is(err, mtree.ErrHeaderMismatch):
		return fmt.Errorf("%w: %w", ErrHeaderMismatch, err)
	case errors.Is(err, mtree.ErrCorruptPage):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, pagefile.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, pagefile.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
