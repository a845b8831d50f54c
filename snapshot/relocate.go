package snapshot

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/pageutil"
)

// Relocate moves the directory's backing block out of the way of the pages
// it indexes. After a resume-time rebuild, the freshly allocated backing
// block may overlap an original address recorded inside it; restoring those
// entries would then corrupt the directory mid-restore.
//
// Copying frame-by-frame could recurse without bound, so rejected candidate
// blocks are instead threaded onto an explicit scratch list: each rejected
// block's first word holds the address of the previously rejected block.
// Once a non-colliding block is found, the directory is copied into it and
// the whole scratch list is released. Termination needs no stack growth and
// extra memory is bounded by the number of rejected attempts.
func (d *Directory) Relocate(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if !d.CollidesRange(d.backing, d.order) {
		logger.Debug("directory relocation not necessary")
		return nil
	}

	var scratchHead uint64
	rejected := 0
	for {
		block, err := d.m.AllocBlock(d.order)
		if err != nil {
			releaseErr := d.releaseScratch(scratchHead)
			if releaseErr != nil {
				return cerrors.CombineErrors(err, releaseErr)
			}
			return cerrors.Wrapf(err, "relocating directory after %d rejected blocks", rejected)
		}

		if d.CollidesRange(block, d.order) {
			d.m.WriteWord(block, scratchHead)
			scratchHead = block
			rejected++
			continue
		}

		d.m.CopyBlock(block, d.backing, d.order)
		err = d.adoptBacking(block)
		if err != nil {
			return err
		}
		break
	}

	logger.Debug("directory relocated", slog.Int("rejectedBlocks", rejected), slog.Int("order", d.order))
	return d.releaseScratch(scratchHead)
}

// adoptBacking switches the directory onto a new backing block, releasing
// the old one.
func (d *Directory) adoptBacking(block uint64) error {
	old := d.backing
	oldFirst := d.m.FrameOf(old)
	for i := 0; i < pageutil.OrderPages(d.order); i++ {
		d.m.TestClearNoSave(oldFirst + pagemem.Frame(i))
	}
	d.backing = block
	d.markBacking()

	err := d.m.FreeBlock(old, d.order)
	if err != nil {
		return cerrors.Wrapf(err, "releasing superseded directory block at %#x", old)
	}
	return nil
}

func (d *Directory) releaseScratch(head uint64) error {
	for addr := head; addr != 0; {
		next := d.m.ReadWord(addr)
		err := d.m.FreeBlock(addr, d.order)
		if err != nil {
			return cerrors.Wrapf(err, "releasing rejected scratch block at %#x", addr)
		}
		addr = next
	}
	return nil
}

// ResolveCopyPages assigns every entry a fresh copy page that does not
// overlap any entry's original address. The test runs against all entries,
// not just the one being resolved: restoring one entry into another's
// still-unrestored copy buffer would corrupt data yet to be loaded.
//
// Rejected pages are parked until the pass completes. Freeing one
// immediately would simply make the allocator hand the same colliding page
// straight back.
func (d *Directory) ResolveCopyPages() error {
	var rejected []uint64

	release := func() error {
		for _, addr := range rejected {
			err := d.m.FreePage(addr)
			if err != nil {
				return cerrors.Wrapf(err, "releasing rejected copy page at %#x", addr)
			}
		}
		return nil
	}

	for i := range d.entries {
		for {
			addr, err := d.m.AllocPage()
			if err != nil {
				err = cerrors.Wrapf(err, "resolving copy page for entry %d of %d", i, len(d.entries))
				releaseErr := release()
				if releaseErr != nil {
					return cerrors.CombineErrors(err, releaseErr)
				}
				return err
			}
			if d.CollidesPage(addr) {
				rejected = append(rejected, addr)
				continue
			}
			d.m.SetNoSave(d.m.FrameOf(addr))
			d.entries[i].CopyAddress = addr
			break
		}
	}

	return release()
}
