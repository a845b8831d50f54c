package pagemem_test

import (
	"testing"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/stretchr/testify/require"
)

func testMachine(t *testing.T, frames int) *pagemem.Machine {
	t.Helper()
	m, err := pagemem.NewMachine(pagemem.Config{
		PageSize:   256,
		FrameCount: frames,
	})
	require.NoError(t, err)
	return m
}

func TestNewMachineRejectsBadLayouts(t *testing.T) {
	_, err := pagemem.NewMachine(pagemem.Config{PageSize: 3000, FrameCount: 16})
	require.Error(t, err)

	_, err = pagemem.NewMachine(pagemem.Config{PageSize: 256, FrameCount: 1})
	require.Error(t, err)

	_, err = pagemem.NewMachine(pagemem.Config{
		PageSize:   256,
		FrameCount: 16,
		Reserved:   []pagemem.Range{{First: 10, Count: 10}},
	})
	require.Error(t, err)
}

func TestFrameZeroIsAlwaysReserved(t *testing.T) {
	m := testMachine(t, 16)
	require.True(t, m.IsReserved(0))
	require.Equal(t, 15, m.FreePageCount())

	addr, err := m.AllocPage()
	require.NoError(t, err)
	require.NotEqual(t, uint64(0), addr)
}

func TestAllocBlockAlignmentAndZeroing(t *testing.T) {
	m := testMachine(t, 32)

	addr, err := m.AllocBlock(2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), addr%(4*256))

	page := m.Page(addr)
	for _, b := range page {
		require.Equal(t, byte(0), b)
	}

	require.Equal(t, 32-1-4, m.FreePageCount())
	require.NoError(t, m.FreeBlock(addr, 2))
	require.Equal(t, 31, m.FreePageCount())
	require.NoError(t, m.Validate())
}

func TestAllocExhaustion(t *testing.T) {
	m := testMachine(t, 4)

	for i := 0; i < 3; i++ {
		_, err := m.AllocPage()
		require.NoError(t, err)
	}
	_, err := m.AllocPage()
	require.Error(t, err)
}

func TestFreeBlockChecks(t *testing.T) {
	m := testMachine(t, 16)

	require.Error(t, m.FreeBlock(13, 0), "unaligned address")
	require.Error(t, m.FreePage(m.FrameAddress(0)), "reserved frame")

	addr, err := m.AllocPage()
	require.NoError(t, err)
	require.NoError(t, m.FreePage(addr))
	require.Error(t, m.FreePage(addr), "double free")
}

func TestFreeRegionLen(t *testing.T) {
	m := testMachine(t, 16)

	require.Equal(t, 0, m.FreeRegionLen(0))
	require.Equal(t, 15, m.FreeRegionLen(1))

	addr, err := m.AllocPage()
	require.NoError(t, err)
	f := m.FrameOf(addr)
	require.Equal(t, pagemem.Frame(1), f)
	require.Equal(t, 0, m.FreeRegionLen(1))
	require.Equal(t, 14, m.FreeRegionLen(2))
}

func TestNoSaveFlags(t *testing.T) {
	m := testMachine(t, 16)

	require.False(t, m.IsNoSave(3))
	m.SetNoSave(3)
	require.True(t, m.IsNoSave(3))
	require.True(t, m.TestClearNoSave(3))
	require.False(t, m.TestClearNoSave(3))
}

func TestNoSaveRegionImplicitlyReserved(t *testing.T) {
	m, err := pagemem.NewMachine(pagemem.Config{
		PageSize:     256,
		FrameCount:   32,
		NoSaveRegion: pagemem.Range{First: 4, Count: 2},
	})
	require.NoError(t, err)

	require.True(t, m.IsReserved(4))
	require.True(t, m.IsReserved(5))

	start, end := m.NoSaveRegion()
	require.Equal(t, uint64(4*256), start)
	require.Equal(t, uint64(6*256), end)
}

func TestWordAccess(t *testing.T) {
	m := testMachine(t, 16)

	addr, err := m.AllocPage()
	require.NoError(t, err)

	m.WriteWord(addr, 0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), m.ReadWord(addr))
}

func TestFrameFlagsString(t *testing.T) {
	require.Equal(t, "", pagemem.FrameFlags(0).String())
	require.Equal(t, "FrameReserved", pagemem.FrameReserved.String())
	require.Equal(t, "FrameNoSave", pagemem.FrameNoSave.String())
	require.Equal(t, "FrameReserved|FrameNoSave", (pagemem.FrameReserved | pagemem.FrameNoSave).String())
}
