package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
)

// Viewer is one user's map state. Each setter updates the query and then
// recomputes the view before returning it.
type Viewer struct {
	ID string

	mu       sync.Mutex
	query    Query
	view     View
	lastUsed time.Time

	deals *service.DealService
	bus   *service.EventBus
	opts  Options
}

// NewViewer creates a viewer with an empty selection and computes its first
// view.
func NewViewer(id string, deals *service.DealService, bus *service.EventBus, opts Options) *Viewer {
	v := &Viewer{ID: id, deals: deals, bus: bus, opts: opts}
	v.mu.Lock()
	v.recompute()
	v.mu.Unlock()
	return v
}

// View returns the last computed view.
func (v *Viewer) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

// Query returns the current query.
func (v *Viewer) Query() Query {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// SetYear selects a year; nil clears the year filter.
func (v *Viewer) SetYear(year *int) View {
	return v.update(func(q *Query) { q.Year = year })
}

// SetRegion selects a region group. Unknown keys leave the state unchanged.
func (v *Viewer) SetRegion(key string) (View, error) {
	if err := v.deals.Regions().Check(key); err != nil {
		return v.View(), err
	}
	return v.update(func(q *Query) { q.Region = key }), nil
}

// SetBounds narrows the legend maximum to a viewport; nil clears it.
func (v *Viewer) SetBounds(b *orb.Bound) View {
	return v.update(func(q *Query) { q.Bounds = b })
}

// SetCrop shows only one crop class; "" shows every class.
func (v *Viewer) SetCrop(c deal.CropClass) View {
	return v.update(func(q *Query) { q.Crop = c })
}

// Apply replaces the whole query at once.
func (v *Viewer) Apply(q Query) (View, error) {
	if err := v.deals.Regions().Check(q.Region); err != nil {
		return v.View(), err
	}
	return v.update(func(cur *Query) { *cur = q }), nil
}

// Reset clears every filter.
func (v *Viewer) Reset() View {
	return v.update(func(q *Query) { *q = Query{} })
}

// Refresh recomputes the view without changing the query, e.g. after the
// deals were reloaded.
func (v *Viewer) Refresh() View {
	return v.update(func(*Query) {})
}

func (v *Viewer) update(fn func(q *Query)) View {
	v.mu.Lock()
	fn(&v.query)
	v.recompute()
	view := v.view
	v.mu.Unlock()

	if v.bus != nil {
		v.bus.Publish(service.Event{
			Resource: service.ResourceSelection,
			Action:   "changed",
			ID:       v.ID,
			Payload:  view,
		})
	}
	return view
}

// recompute must be called with v.mu held.
func (v *Viewer) recompute() {
	q := v.query
	v.deals.Read(func(records []deal.Record, regions *region.Table) {
		v.view = Compute(records, regions, q, v.opts)
	})
	v.lastUsed = time.Now()
}

func (v *Viewer) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}

// Sessions keeps the viewers of connected browsers by session ID.
type Sessions struct {
	mu      sync.RWMutex
	viewers map[string]*Viewer
	deals   *service.DealService
	bus     *service.EventBus
	opts    Options
}

// NewSessions creates an empty session registry.
func NewSessions(deals *service.DealService, bus *service.EventBus, opts Options) *Sessions {
	return &Sessions{
		viewers: make(map[string]*Viewer),
		deals:   deals,
		bus:     bus,
		opts:    opts,
	}
}

// New starts a session with a fresh viewer.
func (s *Sessions) New() *Viewer {
	v := NewViewer(uuid.NewString(), s.deals, s.bus, s.opts)
	s.mu.Lock()
	s.viewers[v.ID] = v
	s.mu.Unlock()
	return v
}

// Get returns the viewer of a session.
func (s *Sessions) Get(id string) (*Viewer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.viewers[id]
	return v, ok
}

// GetOrNew returns the viewer for id, starting a new session when id is
// unknown.
func (s *Sessions) GetOrNew(id string) *Viewer {
	if v, ok := s.Get(id); ok {
		return v
	}
	return s.New()
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.viewers)
}

// RefreshAll recomputes every viewer, e.g. after a reload.
func (s *Sessions) RefreshAll() {
	s.mu.RLock()
	viewers := make([]*Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.mu.RUnlock()

	for _, v := range viewers {
		v.Refresh()
	}
}

// Prune drops sessions idle for longer than maxIdle and returns how many were
// removed.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, v := range s.viewers {
		if v.idleSince().Before(cutoff) {
			delete(s.viewers, id)
			n++
		}
	}
	return n
}

// Run keeps the sessions current until ctx is done: every viewer is
// recomputed when the deals are reloaded, and sessions idle for longer than
// maxIdle are pruned once per maxIdle/2. A zero maxIdle disables pruning.
func (s *Sessions) Run(ctx context.Context, maxIdle time.Duration) {
	changed, stop := s.deals.Watch()
	defer stop()

	var tick <-chan time.Time
	if maxIdle > 0 {
		t := time.NewTicker(maxIdle / 2)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			s.RefreshAll()
		case <-tick:
			s.Prune(maxIdle)
		}
	}
}
