package snapshot

import (
	"encoding/binary"

	"github.com/coldboot/hibernate/storage"
)

// EntryEncodedSize is the on-disk footprint of one directory entry: three
// little-endian 64-bit words.
const EntryEncodedSize = 24

// linkReserve is the tail of every directory backing page left untouched by
// entry encoding. The image writer threads the on-disk chain link through it.
const linkReserve = 8

// Entry records one preserved page: where its bytes must ultimately be
// restored, the scratch page currently holding the byte-for-byte copy, and
// the storage slot holding the copy on disk.
type Entry struct {
	// OriginalAddress is the physical address the page is restored into.
	OriginalAddress uint64
	// CopyAddress is the scratch page owned by the directory. During a
	// suspend it holds the captured copy; during a resume it is
	// re-resolved to a non-colliding page before data is loaded.
	CopyAddress uint64
	// StorageSlot is the on-disk location of the copy. Assigned by the
	// image writer, re-populated by the image reader.
	StorageSlot storage.Slot
}

func (e *Entry) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], e.OriginalAddress)
	binary.LittleEndian.PutUint64(buf[8:16], e.CopyAddress)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.StorageSlot))
}

func (e *Entry) decode(buf []byte) {
	e.OriginalAddress = binary.LittleEndian.Uint64(buf[0:8])
	e.CopyAddress = binary.LittleEndian.Uint64(buf[8:16])
	e.StorageSlot = storage.Slot(binary.LittleEndian.Uint64(buf[16:24]))
}

// EntriesPerPage returns how many entries fit in one directory backing page
// once the tail link field is reserved.
func EntriesPerPage(pageSize int) int {
	return (pageSize - linkReserve) / EntryEncodedSize
}
