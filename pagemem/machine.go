package pagemem

import (
	"encoding/binary"

	cerrors "github.com/cockroachdb/errors"

	"github.com/coldboot/hibernate/pageutil"
)

// Config describes the physical memory layout of a machine.
type Config struct {
	// PageSize is the size in bytes of one page frame. Must be a power of
	// two and large enough to hold the on-disk record tail link.
	PageSize int
	// FrameCount is the total number of physical page frames.
	FrameCount int
	// Reserved lists frame ranges owned by firmware or boot-time
	// allocation. Frame 0 is always reserved regardless of this list, so
	// address 0 is never allocatable and can serve as a nil address.
	Reserved []Range
	// NoSaveRegion is the statically-known no-save code/data region. Frames
	// inside it are implicitly reserved. Reserved frames inside this region
	// are skipped by the page classifier; reserved frames outside it are
	// copied.
	NoSaveRegion Range
}

// Machine models the physical memory of a single machine: a frame table with
// reserved/no-save state, the backing byte slab, and a first-fit power-of-two
// block allocator. It satisfies the memory-allocator collaborator contract of
// the snapshot engine.
//
// The machine is not safe for concurrent use. The snapshot engine runs only
// while all other activity is frozen, so no locking is provided.
type Machine struct {
	pageSize  int
	flags     []FrameFlags
	used      []bool
	slab      []byte
	freeCount int
	noSave    Range
}

// NewMachine builds a machine from the provided layout.
func NewMachine(config Config) (*Machine, error) {
	err := pageutil.CheckPow2(config.PageSize, "Config.PageSize")
	if err != nil {
		return nil, err
	}
	if config.PageSize < 64 {
		return nil, cerrors.Newf("page size %d is too small to carry a chain link", config.PageSize)
	}
	if config.FrameCount < 2 {
		return nil, cerrors.Newf("frame count %d leaves no allocatable memory", config.FrameCount)
	}

	m := &Machine{
		pageSize: config.PageSize,
		flags:    make([]FrameFlags, config.FrameCount),
		used:     make([]bool, config.FrameCount),
		slab:     make([]byte, config.FrameCount*config.PageSize),
		noSave:   config.NoSaveRegion,
	}

	m.reserveRange(Range{First: 0, Count: 1})
	for _, r := range config.Reserved {
		if r.First < 0 || int(r.First)+r.Count > config.FrameCount {
			return nil, cerrors.Newf("reserved range [%d, %d) lies outside the frame table", r.First, int(r.First)+r.Count)
		}
		m.reserveRange(r)
	}
	if config.NoSaveRegion.Count > 0 {
		ns := config.NoSaveRegion
		if ns.First < 0 || int(ns.First)+ns.Count > config.FrameCount {
			return nil, cerrors.Newf("no-save region [%d, %d) lies outside the frame table", ns.First, int(ns.First)+ns.Count)
		}
		m.reserveRange(ns)
	}

	for f := 0; f < config.FrameCount; f++ {
		if !m.used[f] {
			m.freeCount++
		}
	}

	return m, nil
}

func (m *Machine) reserveRange(r Range) {
	for f := r.First; r.Contains(f); f++ {
		m.flags[f] |= FrameReserved
		m.used[f] = true
	}
}

func (m *Machine) PageSize() int {
	return m.pageSize
}

func (m *Machine) FrameCount() int {
	return len(m.flags)
}

// FrameAddress returns the physical address of the first byte of a frame.
func (m *Machine) FrameAddress(f Frame) uint64 {
	return uint64(f) * uint64(m.pageSize)
}

// FrameOf maps a page-aligned physical address back to its frame. It returns
// NilFrame for unaligned or out-of-range addresses.
func (m *Machine) FrameOf(addr uint64) Frame {
	if addr%uint64(m.pageSize) != 0 {
		return NilFrame
	}
	f := Frame(addr / uint64(m.pageSize))
	if int(f) >= len(m.flags) {
		return NilFrame
	}
	return f
}

func (m *Machine) IsReserved(f Frame) bool {
	return m.flags[f]&FrameReserved != 0
}

func (m *Machine) IsNoSave(f Frame) bool {
	return m.flags[f]&FrameNoSave != 0
}

func (m *Machine) SetNoSave(f Frame) {
	m.flags[f] |= FrameNoSave
}

// TestClearNoSave clears the no-save bit and reports whether it was set.
func (m *Machine) TestClearNoSave(f Frame) bool {
	if m.flags[f]&FrameNoSave == 0 {
		return false
	}
	m.flags[f] &^= FrameNoSave
	return true
}

// NoSaveRegion returns the address bounds [start, end) of the static no-save
// code/data region. Both are zero when no region was configured.
func (m *Machine) NoSaveRegion() (start, end uint64) {
	if m.noSave.Count == 0 {
		return 0, 0
	}
	start = m.FrameAddress(m.noSave.First)
	end = start + uint64(m.noSave.Count)*uint64(m.pageSize)
	return start, end
}

// FreeRegionLen returns the number of consecutive free frames starting at f,
// or 0 if f is not free. The classifier uses this to step over whole free
// regions in one move.
func (m *Machine) FreeRegionLen(f Frame) int {
	n := 0
	for int(f)+n < len(m.flags) && !m.used[int(f)+n] {
		n++
	}
	return n
}

func (m *Machine) FreePageCount() int {
	return m.freeCount
}

// AllocPage allocates one zeroed page and returns its address.
func (m *Machine) AllocPage() (uint64, error) {
	return m.AllocBlock(0)
}

// AllocBlock allocates a zeroed, naturally-aligned block of 1<<order pages
// and returns the address of its first byte.
func (m *Machine) AllocBlock(order int) (uint64, error) {
	count := pageutil.OrderPages(order)
	if count > len(m.flags) {
		return 0, cerrors.Newf("order-%d block exceeds physical memory", order)
	}

	for f := 0; f+count <= len(m.flags); f += count {
		if m.FreeRegionLen(Frame(f)) < count {
			continue
		}
		for i := 0; i < count; i++ {
			m.used[f+i] = true
		}
		m.freeCount -= count
		addr := m.FrameAddress(Frame(f))
		m.zero(addr, count*m.pageSize)
		return addr, nil
	}

	return 0, cerrors.Newf("out of memory allocating an order-%d block", order)
}

// FreePage releases one previously allocated page.
func (m *Machine) FreePage(addr uint64) error {
	return m.FreeBlock(addr, 0)
}

// FreeBlock releases a block previously allocated with AllocBlock.
func (m *Machine) FreeBlock(addr uint64, order int) error {
	f := m.FrameOf(addr)
	if f == NilFrame {
		return cerrors.Newf("freeing invalid address %#x", addr)
	}
	count := pageutil.OrderPages(order)
	if int(f)+count > len(m.flags) {
		return cerrors.Newf("freeing block [%#x, +%d pages) beyond physical memory", addr, count)
	}
	for i := 0; i < count; i++ {
		if m.IsReserved(f + Frame(i)) {
			return cerrors.AssertionFailedf("freeing reserved frame %d", int(f)+i)
		}
		if !m.used[int(f)+i] {
			return cerrors.AssertionFailedf("double free of frame %d", int(f)+i)
		}
		m.used[int(f)+i] = false
	}
	m.freeCount += count
	return nil
}

// Page returns the byte contents of the page at addr as a window into the
// machine's memory.
func (m *Machine) Page(addr uint64) []byte {
	return m.slab[addr : addr+uint64(m.pageSize)]
}

// CopyPage copies one page of bytes from src to dst.
func (m *Machine) CopyPage(dst, src uint64) {
	copy(m.Page(dst), m.Page(src))
}

// CopyBlock copies a block of 1<<order pages from src to dst.
func (m *Machine) CopyBlock(dst, src uint64, order int) {
	n := uint64(pageutil.OrderPages(order) * m.pageSize)
	copy(m.slab[dst:dst+n], m.slab[src:src+n])
}

// ReadWord reads the machine word stored at addr. The relocation scratch
// list threads its chain through the first word of each rejected block.
func (m *Machine) ReadWord(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(m.slab[addr : addr+8])
}

// WriteWord stores a machine word at addr.
func (m *Machine) WriteWord(addr uint64, value uint64) {
	binary.LittleEndian.PutUint64(m.slab[addr:addr+8], value)
}

func (m *Machine) zero(addr uint64, n int) {
	region := m.slab[addr : addr+uint64(n)]
	for i := range region {
		region[i] = 0
	}
}

// Validate performs internal consistency checks on the frame table.
func (m *Machine) Validate() error {
	free := 0
	for f := 0; f < len(m.flags); f++ {
		if m.IsReserved(Frame(f)) && !m.used[f] {
			return cerrors.AssertionFailedf("reserved frame %d is marked free", f)
		}
		if !m.used[f] {
			free++
		}
	}
	if free != m.freeCount {
		return cerrors.AssertionFailedf("free count %d does not match frame table (%d free frames)", m.freeCount, free)
	}
	return nil
}

var _ pageutil.Validatable = (*Machine)(nil)
