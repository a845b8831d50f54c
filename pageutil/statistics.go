package pageutil

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Statistics accumulates counters for a single snapshot or restore attempt.
type Statistics struct {
	PagesScanned int
	PagesCopied  int
	SlotsWritten int
	SlotsRead    int
	BytesMoved   int
}

func (s *Statistics) Clear() {
	s.PagesScanned = 0
	s.PagesCopied = 0
	s.SlotsWritten = 0
	s.SlotsRead = 0
	s.BytesMoved = 0
}

func (s *Statistics) AddScanned(pages int) {
	s.PagesScanned += pages
}

func (s *Statistics) AddCopied(pages, pageSize int) {
	s.PagesCopied += pages
	s.BytesMoved += pages * pageSize
}

func (s *Statistics) AddSlotWrite(slotSize int) {
	s.SlotsWritten++
	s.BytesMoved += slotSize
}

func (s *Statistics) AddSlotRead(slotSize int) {
	s.SlotsRead++
	s.BytesMoved += slotSize
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PagesScanned += other.PagesScanned
	s.PagesCopied += other.PagesCopied
	s.SlotsWritten += other.SlotsWritten
	s.SlotsRead += other.SlotsRead
	s.BytesMoved += other.BytesMoved
}

// PrintJson populates a json object with the contents of this statistics object
func (s *Statistics) PrintJson(json jwriter.ObjectState) {
	json.Name("PagesScanned").Int(s.PagesScanned)
	json.Name("PagesCopied").Int(s.PagesCopied)
	json.Name("SlotsWritten").Int(s.SlotsWritten)
	json.Name("SlotsRead").Int(s.SlotsRead)
	json.Name("BytesMoved").Int(s.BytesMoved)
}
