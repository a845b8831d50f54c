package storage

import (
	"io"
	"os"

	cerrors "github.com/cockroachdb/errors"
)

// FileArea is a storage area backed by a flat file, addressed as a sequence
// of fixed-size slots the way a raw block device would be. Slot occupancy is
// tracked in memory only: a resume run only reads slots and rewrites the
// anchor, and a suspend run starts with every data slot free.
type FileArea struct {
	name     string
	file     *os.File
	slotSize int
	capacity int
	free     []Slot
}

var _ Area = (*FileArea)(nil)

// CreateFileArea creates (or truncates) a file sized for the given slot
// geometry.
func CreateFileArea(name, path string, slotSize, capacity int) (*FileArea, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, cerrors.Wrapf(err, "creating storage area file %q", path)
	}
	err = file.Truncate(int64(slotSize) * int64(capacity))
	if err != nil {
		file.Close()
		return nil, cerrors.Wrapf(err, "sizing storage area file %q", path)
	}
	return newFileArea(name, file, slotSize, capacity), nil
}

// OpenFileArea opens an existing area file. Capacity is derived from the
// file size.
func OpenFileArea(name, path string, slotSize int) (*FileArea, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, cerrors.Wrapf(err, "opening storage area file %q", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, cerrors.Wrapf(err, "inspecting storage area file %q", path)
	}
	capacity := int(info.Size() / int64(slotSize))
	if capacity < 2 {
		file.Close()
		return nil, cerrors.Newf("storage area file %q holds %d slots, need at least an anchor and one data slot", path, capacity)
	}
	return newFileArea(name, file, slotSize, capacity), nil
}

func newFileArea(name string, file *os.File, slotSize, capacity int) *FileArea {
	a := &FileArea{
		name:     name,
		file:     file,
		slotSize: slotSize,
		capacity: capacity,
		free:     make([]Slot, 0, capacity-1),
	}
	for s := capacity - 1; s >= 1; s-- {
		a.free = append(a.free, Slot(s))
	}
	return a
}

func (a *FileArea) Close() error {
	return a.file.Close()
}

func (a *FileArea) Name() string {
	return a.name
}

func (a *FileArea) SlotSize() int {
	return a.slotSize
}

func (a *FileArea) Capacity() int {
	return a.capacity
}

func (a *FileArea) FreeSlots() int {
	return len(a.free)
}

func (a *FileArea) Acquire() (Slot, error) {
	if len(a.free) == 0 {
		return 0, cerrors.Wrapf(ErrAreaFull, "area %q", a.name)
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	return slot, nil
}

func (a *FileArea) Release(slot Slot) {
	if slot == AnchorSlot || int(slot) >= a.capacity {
		return
	}
	a.free = append(a.free, slot)
}

func (a *FileArea) ReadSlot(slot Slot, buf []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "reading slot %d of %d", slot, a.capacity)
	}
	if len(buf) != a.slotSize {
		return cerrors.Newf("read buffer is %d bytes, slot size is %d", len(buf), a.slotSize)
	}
	_, err := a.file.ReadAt(buf, int64(slot)*int64(a.slotSize))
	if err != nil && err != io.EOF {
		return cerrors.Wrapf(err, "reading slot %d of area %q", slot, a.name)
	}
	return nil
}

func (a *FileArea) WriteSlot(slot Slot, data []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "writing slot %d of %d", slot, a.capacity)
	}
	if len(data) != a.slotSize {
		return cerrors.Newf("write buffer is %d bytes, slot size is %d", len(data), a.slotSize)
	}
	_, err := a.file.WriteAt(data, int64(slot)*int64(a.slotSize))
	if err != nil {
		return cerrors.Wrapf(err, "writing slot %d of area %q", slot, a.name)
	}
	return nil
}
