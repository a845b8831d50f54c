package snapshot_test

import (
	"testing"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/snapshot"
	"github.com/coldboot/hibernate/storage"
	"github.com/stretchr/testify/require"
)

const testPageSize = 256

func testMachine(t *testing.T, frames int) *pagemem.Machine {
	t.Helper()
	m, err := pagemem.NewMachine(pagemem.Config{
		PageSize:   testPageSize,
		FrameCount: frames,
	})
	require.NoError(t, err)
	return m
}

func TestDirectoryGeometry(t *testing.T) {
	// (256 - 8) / 24 entries fit one page.
	require.Equal(t, 10, snapshot.EntriesPerPage(testPageSize))

	require.Equal(t, 1, snapshot.DirectoryPages(0, testPageSize))
	require.Equal(t, 1, snapshot.DirectoryPages(10, testPageSize))
	require.Equal(t, 2, snapshot.DirectoryPages(11, testPageSize))
	require.Equal(t, 3, snapshot.DirectoryPages(25, testPageSize))

	require.Equal(t, 0, snapshot.DirectoryOrder(10, testPageSize))
	require.Equal(t, 1, snapshot.DirectoryOrder(11, testPageSize))
	require.Equal(t, 2, snapshot.DirectoryOrder(25, testPageSize))
}

func TestCreateDirectoryMarksNoSave(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.CreateDirectory(m, 5)
	require.NoError(t, err)
	require.Equal(t, 5, dir.Len())

	require.True(t, m.IsNoSave(m.FrameOf(dir.BackingAddress())))
	for i := 0; i < dir.Len(); i++ {
		addr := dir.At(i).CopyAddress
		require.NotEqual(t, uint64(0), addr)
		require.True(t, m.IsNoSave(m.FrameOf(addr)))
	}

	require.NoError(t, dir.Free())
	require.Equal(t, 63, m.FreePageCount())
	require.NoError(t, m.Validate())
}

func TestCreateDirectoryZeroEntries(t *testing.T) {
	m := testMachine(t, 16)

	dir, err := snapshot.CreateDirectory(m, 0)
	require.NoError(t, err)
	require.Equal(t, 0, dir.Len())
	require.Equal(t, 0, dir.Order())
	require.Equal(t, 1, dir.PageCount())
	require.Equal(t, 14, m.FreePageCount())

	require.NoError(t, dir.Free())
	require.Equal(t, 15, m.FreePageCount())
}

func TestCreateDirectoryRollsBackOnFailure(t *testing.T) {
	// 7 free frames: 1 backing page + 6 copy pages, then allocation fails.
	m := testMachine(t, 8)

	_, err := snapshot.CreateDirectory(m, 10)
	require.Error(t, err)
	require.Equal(t, 7, m.FreePageCount())
	require.NoError(t, m.Validate())

	for f := pagemem.Frame(0); int(f) < m.FrameCount(); f++ {
		require.False(t, m.IsNoSave(f), "frame %d left no-save after rollback", int(f))
	}
}

func TestDirectoryEncodeDecodeRoundTrip(t *testing.T) {
	m := testMachine(t, 128)

	dir, err := snapshot.NewDirectoryForRead(m, 25)
	require.NoError(t, err)
	for i := 0; i < dir.Len(); i++ {
		entry := dir.At(i)
		entry.OriginalAddress = uint64((i + 1) * testPageSize)
		entry.CopyAddress = uint64((i + 40) * testPageSize)
		entry.StorageSlot = storage.Slot(100 + i)
	}

	pages := make([][]byte, dir.PageCount())
	for i := range pages {
		pages[i] = make([]byte, testPageSize)
		require.NoError(t, dir.EncodePage(i, pages[i]))
	}

	rebuilt, err := snapshot.NewDirectoryForRead(m, 25)
	require.NoError(t, err)
	for i := range pages {
		require.NoError(t, rebuilt.DecodePage(i, pages[i]))
	}

	for i := 0; i < dir.Len(); i++ {
		require.Equal(t, *dir.At(i), *rebuilt.At(i))
	}

	require.Error(t, dir.EncodePage(dir.PageCount(), pages[0]))
	require.Error(t, rebuilt.DecodePage(-1, pages[0]))
}

func TestEncodePageLeavesLinkTailZero(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.NewDirectoryForRead(m, 10)
	require.NoError(t, err)
	for i := 0; i < dir.Len(); i++ {
		dir.At(i).OriginalAddress = ^uint64(0) - uint64(i)
		dir.At(i).CopyAddress = ^uint64(0)
		dir.At(i).StorageSlot = storage.Slot(^uint64(0))
	}

	buf := make([]byte, testPageSize)
	require.NoError(t, dir.EncodePage(0, buf))
	for _, b := range buf[testPageSize-8:] {
		require.Equal(t, byte(0), b)
	}
}

func TestCollision(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.NewDirectoryForRead(m, 2)
	require.NoError(t, err)
	dir.At(0).OriginalAddress = 5 * testPageSize
	dir.At(1).OriginalAddress = 9 * testPageSize

	require.True(t, dir.CollidesPage(5*testPageSize))
	require.False(t, dir.CollidesPage(6*testPageSize))

	// An order-2 block spans four pages.
	require.True(t, dir.CollidesRange(8*testPageSize, 2))
	require.False(t, dir.CollidesRange(10*testPageSize, 2))
}
