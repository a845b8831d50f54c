package snapshot

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/pagemem"
)

// Classifier decides, for each physical page frame, whether it must be
// preserved. The same predicate drives both the counting pass and the copy
// pass, so the selection logic cannot drift between the two.
type Classifier struct {
	m   *pagemem.Machine
	log *slog.Logger
}

func NewClassifier(m *pagemem.Machine, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{m: m, log: logger}
}

// Run scans every physical page frame once and returns the number of frames
// selected for preservation. When dir is non-nil, each selected frame's
// contents are also byte-copied into the next unused directory entry's copy
// page and its address recorded.
//
// Selection: non-reserved frames are skipped when they carry the no-save
// flag (the subsystem's own working pages) or when they head a contiguous
// free region, which is stepped over whole. Reserved frames are skipped only
// inside the static no-save code/data region; reserved frames outside it are
// still copied, since omitting them would corrupt a running system image.
func (c *Classifier) Run(dir *Directory) (int, error) {
	noSaveStart, noSaveEnd := c.m.NoSaveRegion()

	count := 0
	for f := pagemem.Frame(0); int(f) < c.m.FrameCount(); f++ {
		if !c.m.IsReserved(f) {
			if c.m.IsNoSave(f) {
				continue
			}
			if regionLen := c.m.FreeRegionLen(f); regionLen > 0 {
				f += pagemem.Frame(regionLen - 1)
				continue
			}
		} else {
			if c.m.IsNoSave(f) {
				return 0, cerrors.AssertionFailedf("reserved frame %d carries the no-save flag", int(f))
			}
			addr := c.m.FrameAddress(f)
			if addr >= noSaveStart && addr < noSaveEnd {
				continue
			}
		}

		if dir != nil {
			if count >= dir.Len() {
				return 0, cerrors.AssertionFailedf("eligible frame set grew beyond the %d directory entries", dir.Len())
			}
			entry := dir.At(count)
			entry.OriginalAddress = c.m.FrameAddress(f)
			c.m.CopyPage(entry.CopyAddress, entry.OriginalAddress)
		}
		count++
	}

	if dir != nil {
		c.log.Debug("copied data pages", slog.Int("pages", count))
	}
	return count, nil
}
