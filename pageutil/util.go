package pageutil

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// BlockOrder returns the smallest order such that a block of 1<<order pages
// can hold pageCount pages.
func BlockOrder(pageCount int) int {
	if pageCount <= 1 {
		return 0
	}
	return bits.Len(uint(pageCount - 1))
}

// OrderPages returns the number of pages in a block of the provided order.
func OrderPages(order int) int {
	return 1 << order
}

// CeilDiv divides value by divisor, rounding up.
func CeilDiv(value, divisor int) int {
	return (value + divisor - 1) / divisor
}
