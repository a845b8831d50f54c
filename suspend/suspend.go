package suspend

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/image"
	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/pageutil"
	"github.com/coldboot/hibernate/snapshot"
	"github.com/coldboot/hibernate/storage"
)

// DefaultReservePages is the number of free pages held back from the memory
// budget so the storage stack can still drive I/O while everything else is
// frozen.
const DefaultReservePages = 512

// Freezer brings all activity other than the suspend engine to a stop before
// the atomic snapshot and releases it afterward.
type Freezer interface {
	FreezeAll() error
	ThawAll()
}

// Platform gates the storage stack: between the atomic snapshot and the image
// write the suspend-target device has to be brought back up on its own, and
// it is shut back down before the machine powers off.
type Platform interface {
	EnableStorageIO() error
	DisableStorageIO()
}

// NopFreezer satisfies Freezer for environments with nothing to freeze.
type NopFreezer struct{}

func (NopFreezer) FreezeAll() error { return nil }
func (NopFreezer) ThawAll()         {}

// NopPlatform satisfies Platform for storage that needs no gating.
type NopPlatform struct{}

func (NopPlatform) EnableStorageIO() error { return nil }
func (NopPlatform) DisableStorageIO()      {}

// Config wires a Manager to its collaborators.
type Config struct {
	Machine  *pagemem.Machine
	Registry *storage.Registry
	Facts    image.Facts

	// TargetArea names the registered storage area that receives the image.
	TargetArea string

	// Freezer and Platform default to their no-op implementations.
	Freezer  Freezer
	Platform Platform

	// ReservePages overrides DefaultReservePages when positive.
	ReservePages int

	Logger *slog.Logger
}

// Manager drives the two halves of whole-system hibernation: Suspend takes
// an atomic snapshot of the machine and commits it to storage, Resume finds
// a committed image and rebuilds the snapshot in memory so Restore can copy
// every preserved page back to its original address.
type Manager struct {
	m       *pagemem.Machine
	reg     *storage.Registry
	facts   image.Facts
	target  string
	freezer Freezer
	plat    Platform
	reserve int
	log     *slog.Logger

	stats pageutil.Statistics
}

func NewManager(config Config) (*Manager, error) {
	if config.Machine == nil || config.Registry == nil || config.Facts == nil {
		return nil, cerrors.New("machine, registry and facts are all required")
	}
	if config.TargetArea == "" {
		return nil, cerrors.Wrap(storage.ErrNoTarget, "no target area named")
	}

	mgr := &Manager{
		m:       config.Machine,
		reg:     config.Registry,
		facts:   config.Facts,
		target:  config.TargetArea,
		freezer: config.Freezer,
		plat:    config.Platform,
		reserve: config.ReservePages,
		log:     config.Logger,
	}
	if mgr.freezer == nil {
		mgr.freezer = NopFreezer{}
	}
	if mgr.plat == nil {
		mgr.plat = NopPlatform{}
	}
	if mgr.reserve <= 0 {
		mgr.reserve = DefaultReservePages
	}
	if mgr.log == nil {
		mgr.log = slog.Default()
	}
	return mgr, nil
}

// Statistics returns counters for the most recent suspend or resume attempt.
func (mgr *Manager) Statistics() pageutil.Statistics {
	return mgr.stats
}

// Suspend freezes the machine, snapshots every eligible page and writes the
// committed image to the target area. On any failure the machine is thawed
// and left exactly as it was; the only durable effect of a successful run is
// the committed image.
func (mgr *Manager) Suspend() (err error) {
	mgr.stats.Clear()

	err = mgr.freezer.FreezeAll()
	if err != nil {
		return cerrors.Wrap(err, "freezing activity")
	}
	defer mgr.freezer.ThawAll()

	target, err := mgr.reg.MarkTarget(mgr.target)
	if err != nil {
		return err
	}
	defer mgr.reg.Reset()

	cls := snapshot.NewClassifier(mgr.m, mgr.log)
	count, err := cls.Run(nil)
	if err != nil {
		return err
	}
	mgr.stats.AddScanned(mgr.m.FrameCount())
	mgr.log.Info("counted eligible pages", slog.Int("pages", count))

	dirPages := snapshot.DirectoryPages(count, mgr.m.PageSize())
	if mgr.m.FreePageCount() < count+dirPages+mgr.reserve {
		return cerrors.Wrapf(ErrMemoryBudget, "%d pages to copy, %d directory pages, %d reserved, %d free",
			count, dirPages, mgr.reserve, mgr.m.FreePageCount())
	}
	// Data pages, directory pages, header. The anchor slot is not drawn
	// from the free pool.
	if target.FreeSlots() < count+dirPages+1 {
		return cerrors.Wrapf(ErrStorageBudget, "image needs %d slots, area %q has %d free",
			count+dirPages+1, target.Name(), target.FreeSlots())
	}

	dir, err := snapshot.CreateDirectory(mgr.m, count)
	if err != nil {
		return err
	}
	defer func() {
		freeErr := dir.Free()
		if freeErr != nil && err == nil {
			err = freeErr
		}
	}()

	copied, err := cls.Run(dir)
	if err != nil {
		return err
	}
	if copied != count {
		return cerrors.AssertionFailedf("counting pass selected %d pages, copy pass selected %d", count, copied)
	}
	mgr.stats.AddCopied(copied, mgr.m.PageSize())

	err = mgr.plat.EnableStorageIO()
	if err != nil {
		return cerrors.Wrap(err, "enabling storage")
	}
	defer mgr.plat.DisableStorageIO()

	mgr.reg.LockIgnored()
	defer mgr.reg.UnlockIgnored()

	writer := image.NewWriter(mgr.reg, mgr.log)
	err = writer.Write(dir, image.BuildHeader(mgr.facts, count))
	ws := writer.Statistics()
	mgr.stats.AddStatistics(&ws)
	if err != nil {
		return err
	}

	mgr.log.Info("suspend image committed",
		slog.Int("pages", count),
		slog.String("area", target.Name()))
	return nil
}

// Resume looks for a committed image on the target area and rebuilds the
// snapshot directory in memory, relocated clear of every page it preserves.
// ErrNoImage means a normal cold boot should continue.
func (mgr *Manager) Resume() (*snapshot.Directory, error) {
	mgr.stats.Clear()

	record := mgr.reg.Find(mgr.target)
	if record == nil {
		return nil, cerrors.Wrapf(storage.ErrNoTarget, "area %q is not registered", mgr.target)
	}

	err := mgr.plat.EnableStorageIO()
	if err != nil {
		return nil, cerrors.Wrap(err, "enabling storage")
	}
	defer mgr.plat.DisableStorageIO()

	reader := image.NewReader(mgr.m, mgr.facts, mgr.log)
	dir, err := reader.Read(record.Area)
	rs := reader.Statistics()
	mgr.stats.AddStatistics(&rs)
	if err != nil {
		return nil, err
	}

	mgr.log.Info("resume image loaded",
		slog.Int("pages", dir.Len()),
		slog.String("area", record.Name()))
	return dir, nil
}

// Restore copies every preserved page back over its original address and
// releases the directory. After it returns the machine's memory matches the
// suspend-time snapshot.
func (mgr *Manager) Restore(dir *snapshot.Directory) error {
	for i := 0; i < dir.Len(); i++ {
		entry := dir.At(i)
		mgr.m.CopyPage(entry.OriginalAddress, entry.CopyAddress)
	}
	mgr.stats.AddCopied(dir.Len(), mgr.m.PageSize())
	return dir.Free()
}

// Discard releases a resumed directory without touching machine memory, for
// callers that decide not to go through with the restore.
func (mgr *Manager) Discard(dir *snapshot.Directory) error {
	return dir.Free()
}
