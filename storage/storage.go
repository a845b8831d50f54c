package storage

import (
	cerrors "github.com/cockroachdb/errors"
)

// Slot identifies one fixed-size addressable unit on a storage area.
type Slot uint64

// AnchorSlot is the well-known first slot of an area. It holds the
// image-presence signature and the chain head reference, and is never handed
// out by Acquire.
const AnchorSlot Slot = 0

// AreaStatus describes how a registered storage area participates in the
// current suspend run.
type AreaStatus uint32

const (
	// StatusUnused means the area takes no part in the suspend run.
	StatusUnused AreaStatus = iota
	// StatusSuspendTarget means the area receives the image. Exactly one
	// area may hold this status in a given run.
	StatusSuspendTarget
	// StatusIgnored means the area is administratively disabled for the
	// duration of the write phase and re-enabled afterward.
	StatusIgnored
)

var areaStatusMapping = map[AreaStatus]string{
	StatusUnused:        "StatusUnused",
	StatusSuspendTarget: "StatusSuspendTarget",
	StatusIgnored:       "StatusIgnored",
}

func (s AreaStatus) String() string {
	return areaStatusMapping[s]
}

// Area supplies and accepts fixed-size slots on one designated block-storage
// area and performs block I/O against them.
type Area interface {
	// Name identifies the area within a registry.
	Name() string
	// SlotSize returns the fixed size in bytes of every slot.
	SlotSize() int
	// Capacity returns the total number of slots, including the anchor.
	Capacity() int
	// FreeSlots returns the number of slots currently available to Acquire.
	FreeSlots() int
	// Acquire reserves a free slot. The anchor slot is never returned.
	Acquire() (Slot, error)
	// Release returns a previously acquired slot to the free pool and
	// discards its contents.
	Release(slot Slot)
	// ReadSlot reads a slot's contents into buf, which must be SlotSize
	// bytes long. Slots that were never written read as zeroes.
	ReadSlot(slot Slot, buf []byte) error
	// WriteSlot replaces a slot's contents with data, which must be
	// SlotSize bytes long.
	WriteSlot(slot Slot, data []byte) error
}

// AreaRecord tracks one registered area's status for the current run.
type AreaRecord struct {
	Area

	status   AreaStatus
	disabled bool
}

func (r *AreaRecord) Status() AreaStatus {
	return r.status
}

// Registry enumerates the storage areas eligible to hold a suspend image and
// tracks their per-run status. Its pooled Acquire draws from any enabled
// area, which is why the image writer must verify that slots it receives
// come from the suspend-target area.
type Registry struct {
	records []*AreaRecord
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(area Area) *AreaRecord {
	record := &AreaRecord{Area: area}
	r.records = append(r.records, record)
	return record
}

func (r *Registry) Records() []*AreaRecord {
	return r.records
}

// MarkTarget marks the named area as the suspend target and every other
// registered area as ignored.
func (r *Registry) MarkTarget(name string) (*AreaRecord, error) {
	var target *AreaRecord
	for _, record := range r.records {
		if record.Name() == name {
			record.status = StatusSuspendTarget
			target = record
		} else {
			record.status = StatusIgnored
		}
	}
	if target == nil {
		return nil, cerrors.Wrapf(ErrNoTarget, "area %q is not registered", name)
	}
	return target, nil
}

// Target returns the suspend-target record, if one has been marked.
func (r *Registry) Target() *AreaRecord {
	for _, record := range r.records {
		if record.status == StatusSuspendTarget {
			return record
		}
	}
	return nil
}

// Find returns the record for the named area.
func (r *Registry) Find(name string) *AreaRecord {
	for _, record := range r.records {
		if record.Name() == name {
			return record
		}
	}
	return nil
}

// LockIgnored disables every ignored area so its capacity cannot be drawn
// from during the write phase.
func (r *Registry) LockIgnored() {
	for _, record := range r.records {
		if record.status == StatusIgnored {
			record.disabled = true
		}
	}
}

// UnlockIgnored re-enables every ignored area. The writer's post-condition
// requires this on all outcomes.
func (r *Registry) UnlockIgnored() {
	for _, record := range r.records {
		if record.status == StatusIgnored {
			record.disabled = false
		}
	}
}

// Reset clears all per-run status.
func (r *Registry) Reset() {
	for _, record := range r.records {
		record.status = StatusUnused
		record.disabled = false
	}
}

// Acquire reserves a slot from the first enabled area that has one. The
// record the slot came from is returned alongside it.
func (r *Registry) Acquire() (*AreaRecord, Slot, error) {
	for _, record := range r.records {
		if record.disabled {
			continue
		}
		slot, err := record.Area.Acquire()
		if err != nil {
			continue
		}
		return record, slot, nil
	}
	return nil, 0, cerrors.Wrap(ErrAreaFull, "no enabled area has a free slot")
}
