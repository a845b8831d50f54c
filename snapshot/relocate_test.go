package snapshot_test

import (
	"testing"

	"github.com/coldboot/hibernate/snapshot"
	"github.com/stretchr/testify/require"
)

func TestRelocateNotNecessary(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.NewDirectoryForRead(m, 2)
	require.NoError(t, err)
	dir.At(0).OriginalAddress = 60 * testPageSize
	dir.At(1).OriginalAddress = 61 * testPageSize

	before := dir.BackingAddress()
	freeBefore := m.FreePageCount()

	require.NoError(t, dir.Relocate(nil))
	require.Equal(t, before, dir.BackingAddress())
	require.Equal(t, freeBefore, m.FreePageCount())
}

func TestRelocateFindsNonCollidingBlock(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.NewDirectoryForRead(m, 3)
	require.NoError(t, err)

	// Force a collision with the backing block itself, plus with the next
	// two candidate blocks the first-fit allocator will try, so the scratch
	// list sees real use.
	backing := dir.BackingAddress()
	dir.At(0).OriginalAddress = backing
	dir.At(1).OriginalAddress = backing + 1*testPageSize
	dir.At(2).OriginalAddress = backing + 2*testPageSize

	freeBefore := m.FreePageCount()

	require.NoError(t, dir.Relocate(nil))

	require.False(t, dir.CollidesRange(dir.BackingAddress(), dir.Order()))
	require.NotEqual(t, backing, dir.BackingAddress())

	// Old block freed, new block in use, every rejected block released.
	require.Equal(t, freeBefore, m.FreePageCount())
	require.NoError(t, m.Validate())

	// Entries survived the move.
	require.Equal(t, backing, dir.At(0).OriginalAddress)
}

func TestRelocatePreservesEncodedContents(t *testing.T) {
	m := testMachine(t, 128)

	dir, err := snapshot.NewDirectoryForRead(m, 4)
	require.NoError(t, err)
	backing := dir.BackingAddress()
	for i := 0; i < dir.Len(); i++ {
		dir.At(i).OriginalAddress = backing + uint64(i*testPageSize)
		dir.At(i).StorageSlot = 7
	}

	require.NoError(t, dir.Relocate(nil))
	for i := 0; i < dir.Len(); i++ {
		require.Equal(t, backing+uint64(i*testPageSize), dir.At(i).OriginalAddress)
		require.Equal(t, uint64(0), dir.At(i).CopyAddress)
	}
}

func TestRelocateOutOfMemory(t *testing.T) {
	// Small machine: the only other block collides too, and after eating it
	// there is nothing left.
	m := testMachine(t, 4)

	dir, err := snapshot.NewDirectoryForRead(m, 3)
	require.NoError(t, err)
	backing := dir.BackingAddress()

	freeBefore := m.FreePageCount()
	require.Equal(t, 2, freeBefore)

	dir.At(0).OriginalAddress = backing
	dir.At(1).OriginalAddress = backing + 1*testPageSize
	dir.At(2).OriginalAddress = backing + 2*testPageSize

	err = dir.Relocate(nil)
	require.Error(t, err)

	// The scratch list was released even on the failure path.
	require.Equal(t, freeBefore, m.FreePageCount())
	require.NoError(t, m.Validate())
}

func TestResolveCopyPagesAvoidsAllOriginals(t *testing.T) {
	m := testMachine(t, 64)

	dir, err := snapshot.NewDirectoryForRead(m, 2)
	require.NoError(t, err)

	// Adjacent original addresses placed where the allocator will offer
	// them first.
	next, err := m.AllocPage()
	require.NoError(t, err)
	require.NoError(t, m.FreePage(next))
	dir.At(0).OriginalAddress = next
	dir.At(1).OriginalAddress = next + testPageSize

	freeBefore := m.FreePageCount()

	require.NoError(t, dir.ResolveCopyPages())

	for i := 0; i < dir.Len(); i++ {
		addr := dir.At(i).CopyAddress
		require.NotEqual(t, uint64(0), addr)
		for j := 0; j < dir.Len(); j++ {
			require.NotEqual(t, dir.At(j).OriginalAddress, addr)
		}
		require.True(t, m.IsNoSave(m.FrameOf(addr)))
	}
	require.NotEqual(t, dir.At(0).CopyAddress, dir.At(1).CopyAddress)

	// Two pages resolved, every rejected page released.
	require.Equal(t, freeBefore-2, m.FreePageCount())
	require.NoError(t, m.Validate())
}

func TestResolveCopyPagesOutOfMemory(t *testing.T) {
	m := testMachine(t, 4)

	dir, err := snapshot.NewDirectoryForRead(m, 2)
	require.NoError(t, err)

	// Both remaining pages collide; resolution can never succeed.
	free := make([]uint64, 0, 2)
	for {
		addr, err := m.AllocPage()
		if err != nil {
			break
		}
		free = append(free, addr)
	}
	dir.At(0).OriginalAddress = free[0]
	dir.At(1).OriginalAddress = free[1]
	for _, addr := range free {
		require.NoError(t, m.FreePage(addr))
	}

	err = dir.ResolveCopyPages()
	require.Error(t, err)
	require.NoError(t, m.Validate())
}
