package storage

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// MemArea is an in-memory storage area. It backs tests and acts as the
// reference implementation of the Area contract.
type MemArea struct {
	name     string
	slotSize int
	capacity int

	contents *swiss.Map[Slot, []byte]
	free     []Slot
}

var _ Area = (*MemArea)(nil)

// NewMemArea creates an in-memory area with the given slot geometry. Slot 0
// is reserved as the anchor; every other slot starts out free.
func NewMemArea(name string, slotSize, capacity int) *MemArea {
	a := &MemArea{
		name:     name,
		slotSize: slotSize,
		capacity: capacity,
		contents: swiss.NewMap[Slot, []byte](uint32(capacity)),
		free:     make([]Slot, 0, capacity-1),
	}
	for s := capacity - 1; s >= 1; s-- {
		a.free = append(a.free, Slot(s))
	}
	return a
}

func (a *MemArea) Name() string {
	return a.name
}

func (a *MemArea) SlotSize() int {
	return a.slotSize
}

func (a *MemArea) Capacity() int {
	return a.capacity
}

func (a *MemArea) FreeSlots() int {
	return len(a.free)
}

func (a *MemArea) Acquire() (Slot, error) {
	if len(a.free) == 0 {
		return 0, cerrors.Wrapf(ErrAreaFull, "area %q", a.name)
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	return slot, nil
}

func (a *MemArea) Release(slot Slot) {
	if slot == AnchorSlot || int(slot) >= a.capacity {
		return
	}
	a.contents.Delete(slot)
	a.free = append(a.free, slot)
}

func (a *MemArea) ReadSlot(slot Slot, buf []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "reading slot %d of %d", slot, a.capacity)
	}
	if len(buf) != a.slotSize {
		return cerrors.Newf("read buffer is %d bytes, slot size is %d", len(buf), a.slotSize)
	}
	data, ok := a.contents.Get(slot)
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, data)
	return nil
}

func (a *MemArea) WriteSlot(slot Slot, data []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "writing slot %d of %d", slot, a.capacity)
	}
	if len(data) != a.slotSize {
		return cerrors.Newf("write buffer is %d bytes, slot size is %d", len(data), a.slotSize)
	}
	stored := make([]byte, a.slotSize)
	copy(stored, data)
	a.contents.Put(slot, stored)
	return nil
}
