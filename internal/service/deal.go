package service

import (
	"sync"
	"time"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
)

// DealService holds the resident deal collection. The slice handed to Read is
// shared and must be treated as read-only; Replace swaps it wholesale.
type DealService struct {
	mu       sync.RWMutex
	records  []deal.Record
	regions  *region.Table
	loadedAt time.Time
	source   string
	bus      *EventBus

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

// NewDealService creates an empty deal service over a region table.
func NewDealService(regions *region.Table, bus *EventBus) *DealService {
	if regions == nil {
		regions = region.Default()
	}
	return &DealService{
		regions:  regions,
		bus:      bus,
		records:  []deal.Record{},
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Watch returns a channel that is signalled after every Replace, and a func
// that stops watching. Signals coalesce: a watcher that is busy when several
// replaces happen sees one pending signal, never none.
func (s *DealService) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()
	return ch, func() {
		s.watchMu.Lock()
		delete(s.watchers, ch)
		s.watchMu.Unlock()
	}
}

// Watchers returns the number of active watchers.
func (s *DealService) Watchers() int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.watchers)
}

// Replace installs a freshly loaded collection.
func (s *DealService) Replace(records []deal.Record, source string) {
	if records == nil {
		records = []deal.Record{}
	}
	s.mu.Lock()
	s.records = records
	s.source = source
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.watchMu.Lock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.watchMu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceDeals, Action: "reloaded", ID: source})
	}
}

// Read runs fn with the collection held under the read lock. fn must not
// retain or modify records.
func (s *DealService) Read(fn func(records []deal.Record, regions *region.Table)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.records, s.regions)
}

// Regions returns the region table.
func (s *DealService) Regions() *region.Table {
	return s.regions
}

// Status describes the loaded collection.
type Status struct {
	Count    int       `json:"count" doc:"Number of resident deals"`
	Source   string    `json:"source" doc:"Where the deals were loaded from"`
	LoadedAt time.Time `json:"loadedAt" doc:"When the deals were loaded"`
	MinYear  *int      `json:"minYear,omitempty" doc:"Earliest creation year"`
	MaxYear  *int      `json:"maxYear,omitempty" doc:"Latest creation year"`
	Unmapped []string  `json:"unmapped" doc:"Region names not covered by any group"`
}

// Status summarises the collection, including the year range for the slider.
func (s *DealService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Count:    len(s.records),
		Source:   s.source,
		LoadedAt: s.loadedAt,
	}
	names := make([]string, 0, len(s.records))
	for _, r := range s.records {
		names = append(names, r.RegionName)
		if r.Year == nil {
			continue
		}
		y := *r.Year
		if st.MinYear == nil || y < *st.MinYear {
			st.MinYear = &y
		}
		if st.MaxYear == nil || y > *st.MaxYear {
			st.MaxYear = &y
		}
	}
	st.Unmapped = s.regions.Unmapped(names)
	if st.Unmapped == nil {
		st.Unmapped = []string{}
	}
	return st
}
