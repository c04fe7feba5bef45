package dedupe

import "github.com/bakkal-monitor/price-radar/internal/models"

// Set tracks product URLs already accepted during one run.
// It is not safe for concurrent use; a run owns its Set.
type Set struct {
	seen map[string]struct{}
}

// NewSet creates an empty set sized for roughly capacity records.
func NewSet(capacity int) *Set {
	if capacity < 0 {
		capacity = 0
	}
	return &Set{seen: make(map[string]struct{}, capacity)}
}

// Add keeps the record when it has a URL, a positive price and a URL not seen
// before in this run. It reports whether the record was kept.
func (s *Set) Add(rec models.ProductRecord) bool {
	if !rec.Valid() {
		return false
	}
	if _, ok := s.seen[rec.ProductURL]; ok {
		return false
	}
	s.seen[rec.ProductURL] = struct{}{}
	return true
}

// Seen reports whether url was already accepted.
func (s *Set) Seen(url string) bool {
	_, ok := s.seen[url]
	return ok
}

// Len returns the number of accepted URLs.
func (s *Set) Len() int {
	return len(s.seen)
}

// Filter returns the records that survive a fresh Set, in arrival order.
// First-seen wins; no tie-breaking by price is done.
func Filter(records []models.ProductRecord) []models.ProductRecord {
	set := NewSet(len(records))
	out := make([]models.ProductRecord, 0, len(records))
	for _, rec := range records {
		if set.Add(rec) {
			out = append(out, rec)
		}
	}
	return out
}
