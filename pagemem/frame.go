package pagemem

import "strings"

// Frame identifies one fixed-size unit of physical memory by index.
type Frame int

// NilFrame is returned when an address cannot be mapped back to a frame.
const NilFrame Frame = -1

// FrameFlags carries the per-frame state bits tracked by the machine.
type FrameFlags uint8

const (
	// FrameReserved marks a frame owned by firmware or boot-time allocation.
	// Reserved frames are never handed out by the allocator.
	FrameReserved FrameFlags = 1 << iota
	// FrameNoSave marks a frame excluded from snapshot selection and
	// protected from being reused as scratch during restore. Only the
	// hibernation subsystem sets and clears this bit, for its own working
	// pages.
	FrameNoSave
)

var frameFlagsMapping = []struct {
	flag FrameFlags
	name string
}{
	{FrameReserved, "FrameReserved"},
	{FrameNoSave, "FrameNoSave"},
}

func (f FrameFlags) String() string {
	var names []string
	for _, entry := range frameFlagsMapping {
		if f&entry.flag != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Range identifies a contiguous run of frames.
type Range struct {
	First Frame
	Count int
}

func (r Range) Contains(f Frame) bool {
	return f >= r.First && f < r.First+Frame(r.Count)
}
