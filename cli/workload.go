package cli

import (
	"bytes"
	"math/rand"

	cerrors "github.com/cockroachdb/errors"

	"github.com/coldboot/hibernate/pagemem"
)

// plantWorkload allocates the configured number of pages and fills them from
// the seeded stream. Allocation is first-fit, so the same layout and workload
// always land on the same addresses; the addresses are returned in
// allocation order.
func plantWorkload(m *pagemem.Machine, w WorkloadConfig) ([]uint64, error) {
	rng := rand.New(rand.NewSource(w.Seed))
	addrs := make([]uint64, 0, w.Pages)
	for i := 0; i < w.Pages; i++ {
		addr, err := m.AllocPage()
		if err != nil {
			return nil, cerrors.Wrapf(err, "allocating workload page %d of %d", i, w.Pages)
		}
		rng.Read(m.Page(addr))
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// verifyWorkload regenerates the seeded stream and compares it against the
// pages at the given addresses.
func verifyWorkload(m *pagemem.Machine, w WorkloadConfig, addrs []uint64) error {
	rng := rand.New(rand.NewSource(w.Seed))
	expected := make([]byte, m.PageSize())
	for i, addr := range addrs {
		rng.Read(expected)
		if !bytes.Equal(expected, m.Page(addr)) {
			return cerrors.Newf("workload page %d at address %#x does not match the suspended contents", i, addr)
		}
	}
	return nil
}
