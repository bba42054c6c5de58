package tape

import (
	"fmt"
	"sort"
	"sync"
)

// BoundsReporter receives the [min, max] recording time range of a source.
// Sources call it once their range is known and again whenever it grows.
type BoundsReporter interface {
	ReportBounds(min, max int64) error
}

// Source is a file manager: it owns one recorded stream and looks up the
// record active at a given recording time.
type Source interface {
	Name() string
	Attach(r BoundsReporter) error
	// RecordAt returns the latest record with Timestamp <= t.
	RecordAt(t int64) (*Record, bool)
}

// MemSource holds records in memory, sorted by timestamp. Append supports
// streaming ingestion: every append re-reports the bounds.
type MemSource struct {
	name     string
	records  []*Record
	reporter BoundsReporter
	mu       sync.RWMutex
}

func NewMemSource(name string, records ...*Record) *MemSource {
	s := &MemSource{name: name}
	s.records = append(s.records, records...)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].Timestamp < s.records[j].Timestamp
	})
	return s
}

func (s *MemSource) Name() string { return s.name }

func (s *MemSource) Attach(r BoundsReporter) error {
	s.mu.Lock()
	s.reporter = r
	s.mu.Unlock()
	return s.report()
}

// Append adds records and reports the new bounds to the attached reporter.
func (s *MemSource) Append(records ...*Record) error {
	s.mu.Lock()
	s.records = append(s.records, records...)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].Timestamp < s.records[j].Timestamp
	})
	s.mu.Unlock()
	return s.report()
}

func (s *MemSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemSource) report() error {
	s.mu.RLock()
	r := s.reporter
	n := len(s.records)
	var min, max int64
	if n > 0 {
		min, max = s.records[0].Timestamp, s.records[n-1].Timestamp
	}
	s.mu.RUnlock()
	if r == nil || n == 0 {
		return nil
	}
	if err := r.ReportBounds(min, max); err != nil {
		return fmt.Errorf("%s: report bounds: %w", s.name, err)
	}
	return nil
}

func (s *MemSource) RecordAt(t int64) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Timestamp > t
	})
	if i == 0 {
		return nil, false
	}
	return s.records[i-1], true
}
