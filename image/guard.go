package image

import (
	cerrors "github.com/cockroachdb/errors"
)

// CheckCompatibility validates a candidate image header against the live
// machine. A restore must not proceed unless every field matches exactly.
func CheckCompatibility(h Header, facts Facts) error {
	if h.VersionID != facts.VersionID() {
		return cerrors.Wrapf(ErrIncompatible, "incorrect version: image %q, running %q", h.VersionID, facts.VersionID())
	}
	if h.TotalPages != facts.TotalPages() {
		return cerrors.Wrapf(ErrIncompatible, "incorrect memory size: image %d pages, machine has %d", h.TotalPages, facts.TotalPages())
	}
	if h.MachineID != facts.MachineID() {
		return cerrors.Wrapf(ErrIncompatible, "incorrect machine type: image %q, running on %q", h.MachineID, facts.MachineID())
	}
	if h.NumCPUs != facts.NumCPUs() {
		return cerrors.Wrapf(ErrIncompatible, "incorrect number of cpus: image %d, machine has %d", h.NumCPUs, facts.NumCPUs())
	}
	if h.PageSize != facts.PageSize() {
		return cerrors.Wrapf(ErrIncompatible, "incorrect page size: image %d, machine uses %d", h.PageSize, facts.PageSize())
	}
	return nil
}
