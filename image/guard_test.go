package image

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type staticFacts struct {
	version    string
	machine    string
	cpus       int
	pageSize   int
	totalPages int
}

func (f staticFacts) VersionID() string { return f.version }
func (f staticFacts) MachineID() string { return f.machine }
func (f staticFacts) NumCPUs() int      { return f.cpus }
func (f staticFacts) PageSize() int     { return f.pageSize }
func (f staticFacts) TotalPages() int   { return f.totalPages }

func TestCompatibilityGuard(t *testing.T) {
	facts := staticFacts{
		version:    "hibernate-0.3.1",
		machine:    "amber-lake-04",
		cpus:       4,
		pageSize:   4096,
		totalPages: 262144,
	}
	matching := BuildHeader(facts, 100)

	require.NoError(t, CheckCompatibility(matching, facts))

	mutations := map[string]func(h *Header){
		"version":    func(h *Header) { h.VersionID = "hibernate-0.3.2" },
		"machine":    func(h *Header) { h.MachineID = "amber-lake-05" },
		"cpus":       func(h *Header) { h.NumCPUs++ },
		"page size":  func(h *Header) { h.PageSize *= 2 },
		"total size": func(h *Header) { h.TotalPages-- },
	}
	for name, mutate := range mutations {
		h := matching
		mutate(&h)
		err := CheckCompatibility(h, facts)
		require.Error(t, err, "mutation %q accepted", name)
		require.ErrorIs(t, errors.Cause(err), ErrIncompatible)
	}
}
