// Package surface holds the native drawable handle the renderer draws into.
//
// The handle is written exactly once by the consuming context and read by
// arbitrary worker threads (the synchronous handoff handler runs on whichever
// thread posts the request, possibly before the event loop has started).
// Readers observe either "unset" or the final value, never a partial one.
package surface

import (
	"errors"
	"sync/atomic"
)

// ErrHandleAlreadySet is returned when Set is called more than once.
var ErrHandleAlreadySet = errors.New("surface: handle already set")

// ErrZeroHandle is returned when Set is called with a zero handle.
var ErrZeroHandle = errors.New("surface: zero handle")

// Cell is a set-once, read-many holder for a native surface handle. The
// handle is a pointer-sized integer whose meaning is platform-defined and
// opaque to the core.
type Cell struct {
	handle atomic.Uintptr
	set    atomic.Bool
}

// NewCell returns an unset cell.
func NewCell() *Cell {
	return &Cell{}
}

// Set publishes the handle. The first call wins; later calls fail with
// ErrHandleAlreadySet. A zero handle is rejected so Get can distinguish
// "unset" without a separate fence.
func (c *Cell) Set(handle uintptr) error {
	if handle == 0 {
		return ErrZeroHandle
	}
	// Publish the value before the set flag so a reader that observes
	// set=true also observes the final handle.
	if !c.handle.CompareAndSwap(0, handle) {
		return ErrHandleAlreadySet
	}
	c.set.Store(true)
	return nil
}

// Get returns the published handle, or ok=false while unset.
func (c *Cell) Get() (uintptr, bool) {
	if !c.set.Load() {
		// The flag trails the value by one store; fall back to the value
		// itself so concurrent readers never miss a published handle.
		if h := c.handle.Load(); h != 0 {
			return h, true
		}
		return 0, false
	}
	return c.handle.Load(), true
}
