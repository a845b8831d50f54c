package image

import (
	"bytes"
	"encoding/binary"

	cerrors "github.com/cockroachdb/errors"

	"github.com/coldboot/hibernate/storage"
)

// Every written unit of the image is exactly one storage slot in size and
// reuses the tail bytes of the slot for a "next" reference, forming a singly
// linked chain traversed in reverse order of writing.
const linkSize = 8

// Anchor-slot signatures. The anchor flips between "plain storage" and
// "holds image" so general-purpose users of the area never mistake the chain
// for live data. Both are exactly ten bytes, mirroring each other the way
// the remainder of the anchor slot is preserved across flips.
var (
	sigPlain = []byte("BLOCKSPACE")
	sigImage = []byte("HIBERIMAGE")
)

func putLink(buf []byte, next storage.Slot) {
	binary.LittleEndian.PutUint64(buf[len(buf)-linkSize:], uint64(next))
}

func getLink(buf []byte) storage.Slot {
	return storage.Slot(binary.LittleEndian.Uint64(buf[len(buf)-linkSize:]))
}

type anchorState int

const (
	anchorPlain anchorState = iota
	anchorImage
	anchorUnknown
)

// readAnchor reads the anchor slot into buf and classifies its signature.
// When the signature is image-present, the chain head is returned alongside.
func readAnchor(area storage.Area, buf []byte) (anchorState, storage.Slot, error) {
	err := area.ReadSlot(storage.AnchorSlot, buf)
	if err != nil {
		return anchorUnknown, 0, cerrors.Wrap(err, "reading anchor slot")
	}
	switch {
	case bytes.Equal(buf[:len(sigPlain)], sigPlain):
		return anchorPlain, 0, nil
	case bytes.Equal(buf[:len(sigImage)], sigImage):
		return anchorImage, getLink(buf), nil
	default:
		return anchorUnknown, 0, nil
	}
}

// commitAnchor rewrites the anchor in buf with the image-present signature
// and the chain head, preserving the rest of the slot. This write is the
// commit point of the whole image.
func commitAnchor(area storage.Area, buf []byte, head storage.Slot) error {
	copy(buf[:len(sigImage)], sigImage)
	putLink(buf, head)
	err := area.WriteSlot(storage.AnchorSlot, buf)
	if err != nil {
		return cerrors.Wrap(err, "committing anchor slot")
	}
	return nil
}

// restoreAnchor rewrites the anchor in buf back to the plain-storage
// signature, clearing the chain head.
func restoreAnchor(area storage.Area, buf []byte) error {
	copy(buf[:len(sigPlain)], sigPlain)
	putLink(buf, 0)
	err := area.WriteSlot(storage.AnchorSlot, buf)
	if err != nil {
		return cerrors.Wrap(err, "restoring anchor slot")
	}
	return nil
}

// FormatArea stamps the plain-storage signature onto an area's anchor slot.
// Freshly created areas carry no signature at all and are rejected by both
// the writer and the reader until formatted.
func FormatArea(area storage.Area) error {
	buf := make([]byte, area.SlotSize())
	return restoreAnchor(area, buf)
}
