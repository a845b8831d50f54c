package suspend

import (
	"github.com/coldboot/hibernate/image"
	"github.com/coldboot/hibernate/pagemem"
)

// MachineFacts derives the image identity from a live machine plus the
// operator-supplied naming that memory layout alone cannot provide.
type MachineFacts struct {
	Machine *pagemem.Machine

	Version     string
	MachineName string
	CPUs        int
}

var _ image.Facts = MachineFacts{}

func (f MachineFacts) VersionID() string { return f.Version }
func (f MachineFacts) MachineID() string { return f.MachineName }
func (f MachineFacts) NumCPUs() int      { return f.CPUs }
func (f MachineFacts) PageSize() int     { return f.Machine.PageSize() }
func (f MachineFacts) TotalPages() int   { return f.Machine.FrameCount() }
