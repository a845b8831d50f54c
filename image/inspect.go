package image

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/coldboot/hibernate/storage"
)

// Info summarizes what an area's anchor currently holds.
type Info struct {
	HasImage  bool
	ChainHead storage.Slot
	Header    Header
}

// Inspect classifies an area's anchor without disturbing it and decodes the
// image header when one is committed.
func Inspect(area storage.Area) (Info, error) {
	buf := make([]byte, area.SlotSize())
	state, head, err := readAnchor(area, buf)
	if err != nil {
		return Info{}, err
	}
	switch state {
	case anchorPlain:
		return Info{}, nil
	case anchorUnknown:
		return Info{}, cerrors.Wrapf(ErrBadSignature, "area %q", area.Name())
	}
	if head == 0 {
		return Info{}, cerrors.AssertionFailedf("image signature with a nil chain head")
	}

	err = area.ReadSlot(head, buf)
	if err != nil {
		return Info{}, cerrors.Wrap(err, "reading image header")
	}
	return Info{HasImage: true, ChainHead: head, Header: decodeHeader(buf)}, nil
}

// PrintJson populates a json object with the inspection result.
func (info Info) PrintJson(json jwriter.ObjectState) {
	json.Name("HasImage").Bool(info.HasImage)
	if !info.HasImage {
		return
	}
	json.Name("ChainHead").Int(int(info.ChainHead))

	hdr := json.Name("Header").Object()
	hdr.Name("VersionID").String(info.Header.VersionID)
	hdr.Name("MachineID").String(info.Header.MachineID)
	hdr.Name("NumCPUs").Int(info.Header.NumCPUs)
	hdr.Name("PageSize").Int(info.Header.PageSize)
	hdr.Name("TotalPages").Int(info.Header.TotalPages)
	hdr.Name("EntryCount").Int(info.Header.EntryCount)
	hdr.End()
}
