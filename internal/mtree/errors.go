package mtree

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when an object is inserted twice.
	ErrDuplicate = errors.New("mtree: object already indexed")
	// ErrCorruptPage is returned when a page does not decode.
	ErrCorruptPage = errors.New("mtree: corrupt page")
	// ErrHeaderMismatch is returned when a page file was written with other parameters.
	ErrHeaderMismatch = errors.New("mtree: header mismatch")
	// ErrInvalidKMax is returned for k_max < 1.
	ErrInvalidKMax = errors.New("mtree: k_max must be >= 1")
)

// PageTooSmallError reports a page size that yields unusable capacities.
type PageTooSmallError struct {
	PageSize  int
	Directory int
	Leaf      int
}

func (e *PageTooSmallError) Error() string {
	return fmt.Sprintf("mtree: page size %d too small (directory capacity %d, leaf capacity %d)", e.PageSize, e.Directory, e.Leaf)
}

// InvalidKError reports a k outside [1, k_max].
type InvalidKError struct {
	K    int
	KMax int
}

func (e *InvalidKError) Error() string {
	return fmt.Sprintf("mtree: k=%d outside [1, %d]", e.K, e.KMax)
}
