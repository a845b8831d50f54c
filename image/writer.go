package image

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/pageutil"
	"github.com/coldboot/hibernate/snapshot"
	"github.com/coldboot/hibernate/storage"
)

// Writer serializes a populated snapshot directory to the suspend-target
// storage area as a reverse-linked chain: data pages first, then the
// directory's backing pages, then the header, each unit linking to the
// previously written one. The anchor-slot flip at the very end is the only
// commit point; slots drawn before a failure are returned to the area's
// pool, so an abandoned attempt costs nothing.
type Writer struct {
	reg   *storage.Registry
	log   *slog.Logger
	stats pageutil.Statistics
}

func NewWriter(reg *storage.Registry, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{reg: reg, log: logger}
}

// Statistics returns counters for the most recent write attempt.
func (w *Writer) Statistics() pageutil.Statistics {
	return w.stats
}

// Write drains the directory to storage and commits the image. The caller
// must have frozen all other execution, marked exactly one suspend-target
// area and locked every other area so the pooled slot draw cannot count
// space against the wrong area.
func (w *Writer) Write(dir *snapshot.Directory, hdr Header) (err error) {
	w.stats.Clear()

	target := w.reg.Target()
	if target == nil {
		return cerrors.Wrap(storage.ErrNoTarget, "writing suspend image")
	}
	slotSize := target.SlotSize()
	if slotSize != dir.Machine().PageSize() {
		return cerrors.AssertionFailedf("slot size %d does not match page size %d", slotSize, dir.Machine().PageSize())
	}

	var acquired []storage.Slot
	defer func() {
		if err == nil {
			return
		}
		for _, slot := range acquired {
			target.Release(slot)
		}
	}()

	w.log.Debug("writing data pages", slog.Int("pages", dir.Len()), slog.String("area", target.Name()))
	for i := 0; i < dir.Len(); i++ {
		slot, err := w.acquire(target)
		if err != nil {
			return cerrors.Wrapf(err, "writing data page %d of %d", i, dir.Len())
		}
		acquired = append(acquired, slot)
		err = target.WriteSlot(slot, dir.CopyBytes(i))
		if err != nil {
			return cerrors.Wrapf(err, "writing data page %d of %d", i, dir.Len())
		}
		dir.At(i).StorageSlot = slot
		w.stats.AddSlotWrite(slotSize)
	}

	buf := make([]byte, slotSize)
	prev := storage.Slot(0)

	w.log.Debug("writing directory pages", slog.Int("pages", dir.PageCount()))
	for i := 0; i < dir.PageCount(); i++ {
		err := dir.EncodePage(i, buf)
		if err != nil {
			return err
		}
		putLink(buf, prev)

		slot, err := w.acquire(target)
		if err != nil {
			return cerrors.Wrapf(err, "writing directory page %d of %d", i, dir.PageCount())
		}
		acquired = append(acquired, slot)
		err = target.WriteSlot(slot, buf)
		if err != nil {
			return cerrors.Wrapf(err, "writing directory page %d of %d", i, dir.PageCount())
		}
		prev = slot
		w.stats.AddSlotWrite(slotSize)
	}

	for i := range buf {
		buf[i] = 0
	}
	err = encodeHeader(hdr, buf)
	if err != nil {
		return err
	}
	putLink(buf, prev)

	slot, err := w.acquire(target)
	if err != nil {
		return cerrors.Wrap(err, "writing header")
	}
	acquired = append(acquired, slot)
	err = target.WriteSlot(slot, buf)
	if err != nil {
		return cerrors.Wrap(err, "writing header")
	}
	w.stats.AddSlotWrite(slotSize)

	state, _, err := readAnchor(target, buf)
	if err != nil {
		return err
	}
	if state != anchorPlain {
		return cerrors.Wrapf(ErrBadSignature, "refusing to commit over anchor state %d", int(state))
	}
	err = commitAnchor(target, buf, slot)
	if err != nil {
		return err
	}
	w.stats.AddSlotWrite(slotSize)

	w.log.Debug("image committed",
		slog.Int("entries", dir.Len()),
		slog.Uint64("chainHead", uint64(slot)),
		slog.Int("bytesWritten", w.stats.BytesMoved))
	return nil
}

// acquire draws one slot from the pooled registry and verifies it came from
// the suspend-target area. Space counted against any other area would make
// the image unreadable, so a foreign slot is an internal error rather than
// an out-of-space condition.
func (w *Writer) acquire(target *storage.AreaRecord) (storage.Slot, error) {
	record, slot, err := w.reg.Acquire()
	if err != nil {
		return 0, cerrors.Wrapf(ErrNoSpace, "%v", err)
	}
	if record != target {
		record.Release(slot)
		return 0, cerrors.AssertionFailedf("slot %d acquired from area %q instead of suspend target %q",
			uint64(slot), record.Name(), target.Name())
	}
	return slot, nil
}
