package snapshot

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/pageutil"
)

// Directory is the relocatable index of preserved pages: an ordered, fixed
// sequence of entries backed by a power-of-two block of page frames. The
// backing frames and every entry's copy page are marked no-save so the
// classifier never selects the subsystem's own working memory.
type Directory struct {
	m       *pagemem.Machine
	entries []Entry
	backing uint64
	order   int
}

// DirectoryPages returns the number of backing pages needed to index
// entryCount entries. A zero-entry directory still occupies one page.
func DirectoryPages(entryCount, pageSize int) int {
	if entryCount == 0 {
		return 1
	}
	return pageutil.CeilDiv(entryCount, EntriesPerPage(pageSize))
}

// DirectoryOrder returns the block order of a directory's backing allocation.
func DirectoryOrder(entryCount, pageSize int) int {
	return pageutil.BlockOrder(DirectoryPages(entryCount, pageSize))
}

// CreateDirectory allocates a directory for entryCount entries along with one
// fresh copy page per entry. Every acquired frame is marked no-save. Any
// allocation failure rolls back all frames acquired so far; a partial
// directory is never left live.
func CreateDirectory(m *pagemem.Machine, entryCount int) (*Directory, error) {
	d, err := newDirectory(m, entryCount)
	if err != nil {
		return nil, err
	}

	for i := range d.entries {
		addr, err := m.AllocPage()
		if err != nil {
			freeErr := d.Free()
			if freeErr != nil {
				return nil, cerrors.CombineErrors(err, freeErr)
			}
			return nil, cerrors.Wrapf(err, "allocating copy page for entry %d of %d", i, entryCount)
		}
		m.SetNoSave(m.FrameOf(addr))
		d.entries[i].CopyAddress = addr
	}

	return d, nil
}

// NewDirectoryForRead allocates the backing block and entry table for a
// directory about to be rebuilt from storage. Copy pages are not allocated;
// the reader resolves them after relocation.
func NewDirectoryForRead(m *pagemem.Machine, entryCount int) (*Directory, error) {
	return newDirectory(m, entryCount)
}

func newDirectory(m *pagemem.Machine, entryCount int) (*Directory, error) {
	order := DirectoryOrder(entryCount, m.PageSize())
	backing, err := m.AllocBlock(order)
	if err != nil {
		return nil, cerrors.Wrapf(err, "allocating order-%d directory block for %d entries", order, entryCount)
	}

	d := &Directory{
		m:       m,
		entries: make([]Entry, entryCount),
		backing: backing,
		order:   order,
	}
	d.markBacking()
	return d, nil
}

func (d *Directory) markBacking() {
	first := d.m.FrameOf(d.backing)
	for i := 0; i < pageutil.OrderPages(d.order); i++ {
		d.m.SetNoSave(first + pagemem.Frame(i))
	}
}

func (d *Directory) Len() int {
	return len(d.entries)
}

func (d *Directory) Order() int {
	return d.order
}

func (d *Directory) PageCount() int {
	return DirectoryPages(len(d.entries), d.m.PageSize())
}

func (d *Directory) BackingAddress() uint64 {
	return d.backing
}

func (d *Directory) Machine() *pagemem.Machine {
	return d.m
}

// At returns the i'th entry for in-place updates. Entries are owned
// exclusively by the directory.
func (d *Directory) At(i int) *Entry {
	return &d.entries[i]
}

// CopyBytes returns the byte contents of entry i's copy page.
func (d *Directory) CopyBytes(i int) []byte {
	return d.m.Page(d.entries[i].CopyAddress)
}

// Free releases every no-save frame owned by this directory: all entry copy
// pages plus the backing block, in a single sweep of the frame table. Frames
// inside the currently-in-use backing range are skipped by the sweep and
// released with the block itself, so a relocation transition never
// double-frees.
func (d *Directory) Free() error {
	if d.backing == 0 {
		return nil
	}

	backingEnd := d.backing + uint64(pageutil.OrderPages(d.order)*d.m.PageSize())

	var sweepErr error
	for f := pagemem.Frame(0); int(f) < d.m.FrameCount(); f++ {
		if !d.m.TestClearNoSave(f) {
			continue
		}
		addr := d.m.FrameAddress(f)
		if addr >= d.backing && addr < backingEnd {
			continue
		}
		err := d.m.FreePage(addr)
		if err != nil && sweepErr == nil {
			sweepErr = err
		}
	}

	err := d.m.FreeBlock(d.backing, d.order)
	if err != nil && sweepErr == nil {
		sweepErr = err
	}

	d.backing = 0
	d.entries = nil
	return sweepErr
}

// EncodePage serializes the i'th backing page's worth of entries into buf.
// The tail link field is left zeroed for the image writer to fill.
func (d *Directory) EncodePage(i int, buf []byte) error {
	perPage := EntriesPerPage(d.m.PageSize())
	if i < 0 || i >= d.PageCount() {
		return cerrors.AssertionFailedf("encoding directory page %d of %d", i, d.PageCount())
	}
	for j := range buf {
		buf[j] = 0
	}
	first := i * perPage
	for j := first; j < len(d.entries) && j < first+perPage; j++ {
		d.entries[j].encode(buf[(j-first)*EntryEncodedSize:])
	}
	return nil
}

// DecodePage deserializes the i'th backing page's worth of entries from buf.
func (d *Directory) DecodePage(i int, buf []byte) error {
	perPage := EntriesPerPage(d.m.PageSize())
	if i < 0 || i >= d.PageCount() {
		return cerrors.AssertionFailedf("decoding directory page %d of %d", i, d.PageCount())
	}
	first := i * perPage
	for j := first; j < len(d.entries) && j < first+perPage; j++ {
		d.entries[j].decode(buf[(j-first)*EntryEncodedSize:])
	}
	return nil
}

// CollidesPage reports whether any entry's original address lies within the
// page at addr.
func (d *Directory) CollidesPage(addr uint64) bool {
	return d.CollidesRange(addr, 0)
}

// CollidesRange reports whether any entry's original address lies within the
// block of 1<<order pages at addr.
func (d *Directory) CollidesRange(addr uint64, order int) bool {
	end := addr + uint64(pageutil.OrderPages(order)*d.m.PageSize())
	for i := range d.entries {
		if d.entries[i].OriginalAddress >= addr && d.entries[i].OriginalAddress < end {
			return true
		}
	}
	return false
}

// PrintJson populates a json object with the directory's layout and entries.
func (d *Directory) PrintJson(json jwriter.ObjectState) {
	json.Name("EntryCount").Int(len(d.entries))
	json.Name("Order").Int(d.order)
	json.Name("BackingAddress").Int(int(d.backing))

	entries := json.Name("Entries").Array()
	for i := range d.entries {
		entry := entries.Object()
		entry.Name("OriginalAddress").Int(int(d.entries[i].OriginalAddress))
		entry.Name("CopyAddress").Int(int(d.entries[i].CopyAddress))
		entry.Name("StorageSlot").Int(int(d.entries[i].StorageSlot))
		entry.End()
	}
	entries.End()
}
