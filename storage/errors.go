package storage

import "github.com/pkg/errors"

// ErrAreaFull is the error returned from Area.Acquire when the area has no
// free slots left
var ErrAreaFull error = errors.New("storage area has no free slots")

// ErrBadSlot is the error returned when a slot identifier does not map to a
// slot on the area
var ErrBadSlot error = errors.New("slot identifier out of range")

// ErrNoTarget is the error returned from Registry methods that require a
// suspend-target area when none has been marked
var ErrNoTarget error = errors.New("no suspend-target storage area")
