package pageutil_test

import (
	"testing"

	"github.com/coldboot/hibernate/pageutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, pageutil.CheckPow2(1, "value"))
	require.NoError(t, pageutil.CheckPow2(4096, "value"))

	err := pageutil.CheckPow2(3000, "value")
	require.Error(t, err)
	require.ErrorIs(t, errors.Cause(err), pageutil.ErrNotPowerOfTwo)

	err = pageutil.CheckPow2(0, "value")
	require.Error(t, err)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 4096, pageutil.AlignUp(1, 4096))
	require.Equal(t, 4096, pageutil.AlignUp(4096, 4096))
	require.Equal(t, 8192, pageutil.AlignUp(4097, 4096))
	require.Equal(t, 0, pageutil.AlignDown(4095, 4096))
	require.Equal(t, 4096, pageutil.AlignDown(4097, 4096))
}

func TestBlockOrder(t *testing.T) {
	require.Equal(t, 0, pageutil.BlockOrder(0))
	require.Equal(t, 0, pageutil.BlockOrder(1))
	require.Equal(t, 1, pageutil.BlockOrder(2))
	require.Equal(t, 2, pageutil.BlockOrder(3))
	require.Equal(t, 2, pageutil.BlockOrder(4))
	require.Equal(t, 3, pageutil.BlockOrder(5))
	require.Equal(t, 4, pageutil.BlockOrder(16))
	require.Equal(t, 5, pageutil.BlockOrder(17))
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 1, pageutil.CeilDiv(1, 170))
	require.Equal(t, 1, pageutil.CeilDiv(170, 170))
	require.Equal(t, 2, pageutil.CeilDiv(171, 170))
}
