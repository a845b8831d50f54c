package image

import (
	"bytes"
	"encoding/binary"

	cerrors "github.com/cockroachdb/errors"
)

const (
	headerVersionLen = 32
	headerMachineLen = 32

	headerEncodedSize = headerVersionLen + headerMachineLen + 4 + 4 + 8 + 8
)

// Header is the single record stored first in the write order and read last.
// Every field must match the live machine exactly before a restore proceeds.
type Header struct {
	// VersionID identifies the build that wrote the image.
	VersionID string
	// MachineID identifies the machine the image was taken on.
	MachineID string
	// NumCPUs is the online CPU count at suspend time.
	NumCPUs int
	// PageSize is the page size in bytes at suspend time.
	PageSize int
	// TotalPages is the total physical page count at suspend time.
	TotalPages int
	// EntryCount is the number of preserved pages in the image. The
	// directory's block order is re-derived from it at read time.
	EntryCount int
}

// Facts supplies the live machine's identity, used both to build a header at
// suspend time and to validate one at resume time.
type Facts interface {
	VersionID() string
	MachineID() string
	NumCPUs() int
	PageSize() int
	TotalPages() int
}

// BuildHeader assembles the header for an image of entryCount preserved
// pages from the live machine's facts.
func BuildHeader(facts Facts, entryCount int) Header {
	return Header{
		VersionID:  facts.VersionID(),
		MachineID:  facts.MachineID(),
		NumCPUs:    facts.NumCPUs(),
		PageSize:   facts.PageSize(),
		TotalPages: facts.TotalPages(),
		EntryCount: entryCount,
	}
}

func encodeHeader(h Header, buf []byte) error {
	if len(h.VersionID) > headerVersionLen {
		return cerrors.Newf("version identifier %q exceeds %d bytes", h.VersionID, headerVersionLen)
	}
	if len(h.MachineID) > headerMachineLen {
		return cerrors.Newf("machine identity %q exceeds %d bytes", h.MachineID, headerMachineLen)
	}
	if len(buf) < headerEncodedSize+linkSize {
		return cerrors.AssertionFailedf("slot size %d cannot hold a %d-byte header and its chain link", len(buf), headerEncodedSize)
	}

	for i := range buf[:headerEncodedSize] {
		buf[i] = 0
	}
	copy(buf[0:headerVersionLen], h.VersionID)
	copy(buf[headerVersionLen:headerVersionLen+headerMachineLen], h.MachineID)
	rest := buf[headerVersionLen+headerMachineLen:]
	binary.LittleEndian.PutUint32(rest[0:4], uint32(h.NumCPUs))
	binary.LittleEndian.PutUint32(rest[4:8], uint32(h.PageSize))
	binary.LittleEndian.PutUint64(rest[8:16], uint64(h.TotalPages))
	binary.LittleEndian.PutUint64(rest[16:24], uint64(h.EntryCount))
	return nil
}

func decodeHeader(buf []byte) Header {
	rest := buf[headerVersionLen+headerMachineLen:]
	return Header{
		VersionID:  string(bytes.TrimRight(buf[0:headerVersionLen], "\x00")),
		MachineID:  string(bytes.TrimRight(buf[headerVersionLen:headerVersionLen+headerMachineLen], "\x00")),
		NumCPUs:    int(binary.LittleEndian.Uint32(rest[0:4])),
		PageSize:   int(binary.LittleEndian.Uint32(rest[4:8])),
		TotalPages: int(binary.LittleEndian.Uint64(rest[8:16])),
		EntryCount: int(binary.LittleEndian.Uint64(rest[16:24])),
	}
}
