package image

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/pageutil"
	"github.com/coldboot/hibernate/snapshot"
	"github.com/coldboot/hibernate/storage"
)

// Reader reconstructs a snapshot directory from a storage area: it locates
// and validates the chain, rebuilds the directory in freshly allocated
// memory, relocates it away from the pages it must restore, resolves
// non-colliding copy buffers and loads every preserved page into them.
//
// The anchor is flipped back to the plain-storage signature as soon as the
// chain head has been recorded, so a failed resume never leaves the area
// looking like it still holds a live image.
type Reader struct {
	m     *pagemem.Machine
	facts Facts
	log   *slog.Logger
	stats pageutil.Statistics
}

func NewReader(m *pagemem.Machine, facts Facts, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{m: m, facts: facts, log: logger}
}

// Statistics returns counters for the most recent read attempt.
func (r *Reader) Statistics() pageutil.Statistics {
	return r.stats
}

// Read returns the fully populated directory, ready for the final copy-back
// collaborator. ErrNoImage means the area holds plain storage and there is
// nothing to resume. ErrIncompatible, allocation failures and I/O failures
// all void the resume attempt; the caller continues a normal cold start.
func (r *Reader) Read(area storage.Area) (*snapshot.Directory, error) {
	r.stats.Clear()

	slotSize := area.SlotSize()
	if slotSize != r.m.PageSize() {
		return nil, cerrors.AssertionFailedf("slot size %d does not match page size %d", slotSize, r.m.PageSize())
	}
	buf := make([]byte, slotSize)

	state, head, err := readAnchor(area, buf)
	if err != nil {
		return nil, err
	}
	r.stats.AddSlotRead(slotSize)
	switch state {
	case anchorPlain:
		return nil, cerrors.Wrapf(ErrNoImage, "area %q", area.Name())
	case anchorUnknown:
		return nil, cerrors.Wrapf(ErrBadSignature, "area %q", area.Name())
	}

	err = restoreAnchor(area, buf)
	if err != nil {
		return nil, err
	}
	if head == 0 {
		return nil, cerrors.AssertionFailedf("image signature with a nil chain head")
	}
	r.log.Debug("image signature found", slog.String("area", area.Name()), slog.Uint64("chainHead", uint64(head)))

	err = area.ReadSlot(head, buf)
	if err != nil {
		return nil, cerrors.Wrap(err, "reading image header")
	}
	r.stats.AddSlotRead(slotSize)
	hdr := decodeHeader(buf)
	next := getLink(buf)

	// The anchor flip already destroyed the image, so each slot goes back
	// to the area's pool the moment its contents have been consumed.
	area.Release(head)

	err = CheckCompatibility(hdr, r.facts)
	if err != nil {
		return nil, err
	}
	// The guard only proves the header matches this machine; a corrupt
	// header slot can still decode an entry count no image could hold.
	if hdr.EntryCount < 0 || hdr.EntryCount > hdr.TotalPages {
		return nil, cerrors.Wrapf(ErrBadSignature, "header entry count %d outside [0, %d]", hdr.EntryCount, hdr.TotalPages)
	}

	dir, err := snapshot.NewDirectoryForRead(r.m, hdr.EntryCount)
	if err != nil {
		return nil, err
	}

	dir, err = r.load(area, dir, next, buf)
	if err != nil {
		return nil, err
	}

	r.log.Debug("image loaded",
		slog.Int("entries", dir.Len()),
		slog.Int("bytesRead", r.stats.BytesMoved))
	return dir, nil
}

// load fills the directory from the chain and resolves its memory placement.
// The directory is freed on every error path.
func (r *Reader) load(area storage.Area, dir *snapshot.Directory, next storage.Slot, buf []byte) (*snapshot.Directory, error) {
	fail := func(err error) (*snapshot.Directory, error) {
		freeErr := dir.Free()
		if freeErr != nil {
			return nil, cerrors.CombineErrors(err, freeErr)
		}
		return nil, err
	}

	// The chain yields backing pages in reverse order of writing, so
	// indices are filled back-to-front.
	for i := dir.PageCount() - 1; i >= 0; i-- {
		if next == 0 {
			return fail(cerrors.AssertionFailedf("directory chain ended %d pages early", i+1))
		}
		err := area.ReadSlot(next, buf)
		if err != nil {
			return fail(cerrors.Wrapf(err, "reading directory page %d", i))
		}
		r.stats.AddSlotRead(len(buf))
		err = dir.DecodePage(i, buf)
		if err != nil {
			return fail(err)
		}
		area.Release(next)
		next = getLink(buf)
	}
	if next != 0 {
		return fail(cerrors.AssertionFailedf("directory chain carries a trailing link to slot %d", uint64(next)))
	}

	err := dir.Relocate(r.log)
	if err != nil {
		return fail(err)
	}
	err = dir.ResolveCopyPages()
	if err != nil {
		return fail(err)
	}

	for i := 0; i < dir.Len(); i++ {
		entry := dir.At(i)
		err = area.ReadSlot(entry.StorageSlot, r.m.Page(entry.CopyAddress))
		if err != nil {
			return fail(cerrors.Wrapf(err, "reading data page %d of %d", i, dir.Len()))
		}
		area.Release(entry.StorageSlot)
		r.stats.AddSlotRead(len(buf))
	}

	return dir, nil
}
