package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/deal"
	"github.com/joeblew999/plat-landmatrix/internal/filter"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
)

func records() []deal.Record {
	return []deal.Record{
		{ID: "1", RegionName: "Africa", Year: deal.Int(2020), Surface: deal.Float(200), CountryCode: "SDN", Location: orb.Point{30, 15}},
		{ID: "2", RegionName: "Asia", Year: deal.Int(2021), Surface: deal.Float(300), CountryCode: "IDN", Location: orb.Point{110, -2}, Crops: deal.Crops{OilPalm: true}},
		{ID: "3", RegionName: "Africa", Year: deal.Int(2020), CountryCode: "SDN", Location: orb.Point{31, 16}},
		{ID: "4", RegionName: "Africa", Year: deal.Int(2021), Surface: deal.Float(1_000_000), Location: orb.Point{-5, 8}},
	}
}

func newDeals() *service.DealService {
	s := service.NewDealService(region.Default(), nil)
	s.Replace(records(), "test")
	return s
}

func TestCompute(t *testing.T) {
	v := Compute(records(), region.Default(), Query{Selection: filter.Selection{Region: "Africa"}}, DefaultOptions)

	assert.Equal(t, 3, v.Count)
	assert.Equal(t, "Africa", v.RegionLabel)
	assert.Equal(t, filter.Scalar{Hectares: 1_000_000, Valid: true}, v.MaxSurface)
	assert.Equal(t, legend.DefaultScale.MaxRadius, v.Radius)
	assert.Equal(t, "1,000,000 ha", v.Label)
	assert.Equal(t, map[string]float64{"SDN": 200, filter.UnknownCountryCode: 1_000_000}, v.ByCountry)
	assert.Equal(t, []chart.Bar{
		{Code: filter.UnknownCountryCode, Hectares: 1_000_000},
		{Code: "SDN", Hectares: 200},
	}, v.Bars)
}

func TestComputeBoundsOnlyNarrowLegend(t *testing.T) {
	sudan := orb.Bound{Min: orb.Point{20, 10}, Max: orb.Point{40, 20}}
	v := Compute(records(), region.Default(), Query{Bounds: &sudan}, DefaultOptions)

	assert.Equal(t, 4, v.Count)
	assert.Equal(t, filter.Scalar{Hectares: 200, Valid: true}, v.MaxSurface)
	assert.Len(t, v.ByCountry, 3)
}

func TestComputeNoData(t *testing.T) {
	v := Compute(records(), region.Default(), Query{Selection: filter.Selection{Year: deal.Int(1990)}}, DefaultOptions)
	assert.Zero(t, v.Count)
	assert.Equal(t, filter.NoData, v.MaxSurface)
	assert.Equal(t, legend.NoDataLabel, v.Label)
	assert.Zero(t, v.Radius)
	assert.Empty(t, v.Bars)
}

func TestComputeCrop(t *testing.T) {
	v := Compute(records(), region.Default(), Query{Crop: deal.CropOilPalm}, DefaultOptions)
	require.Len(t, v.Visible, 1)
	assert.Equal(t, "2", v.Visible[0].ID)
}

func TestViewerUpdateThenRecompute(t *testing.T) {
	bus := service.NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	v := NewViewer("s1", newDeals(), bus, DefaultOptions)
	assert.Equal(t, 4, v.View().Count)

	view := v.SetYear(deal.Int(2020))
	assert.Equal(t, 2, view.Count)

	ev := <-ch
	assert.Equal(t, service.ResourceSelection, ev.Resource)
	assert.Equal(t, "s1", ev.ID)
	assert.Equal(t, 2, ev.Payload.(View).Count)

	view, err := v.SetRegion("Asia")
	require.NoError(t, err)
	assert.Zero(t, view.Count)

	_, err = v.SetRegion("Atlantis")
	assert.True(t, errors.Is(err, region.ErrUnknownGroup))
	assert.Equal(t, "Asia", v.Query().Region)

	view = v.SetYear(nil)
	assert.Equal(t, 1, view.Count)

	view = v.Reset()
	assert.Equal(t, 4, view.Count)
	assert.Equal(t, Query{}, v.Query())
}

func TestViewerApply(t *testing.T) {
	v := NewViewer("s2", newDeals(), nil, DefaultOptions)
	view, err := v.Apply(Query{Selection: filter.Selection{Year: deal.Int(2021), Region: region.World}})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Count)

	_, err = v.Apply(Query{Selection: filter.Selection{Region: "Nowhere"}})
	assert.Error(t, err)
	assert.Equal(t, deal.Int(2021), v.Query().Year)
}

func TestViewerRefreshAfterReload(t *testing.T) {
	deals := newDeals()
	sessions := NewSessions(deals, nil, DefaultOptions)
	v := sessions.New()
	assert.Equal(t, 4, v.View().Count)

	deals.Replace(records()[:1], "smaller")
	assert.Equal(t, 4, v.View().Count, "view is stale until refreshed")
	sessions.RefreshAll()
	assert.Equal(t, 1, v.View().Count)
}

func TestSessions(t *testing.T) {
	s := NewSessions(newDeals(), nil, DefaultOptions)
	v := s.New()
	assert.NotEmpty(t, v.ID)

	got, ok := s.Get(v.ID)
	require.True(t, ok)
	assert.Same(t, v, got)

	assert.Same(t, v, s.GetOrNew(v.ID))
	other := s.GetOrNew("unknown")
	assert.NotEqual(t, v.ID, other.ID)
	assert.Equal(t, 2, s.Len())

	assert.Zero(t, s.Prune(time.Hour))
	assert.Equal(t, 2, s.Prune(-time.Second))
	assert.Zero(t, s.Len())
}

func TestSessionsRunRefreshesOnReload(t *testing.T) {
	bus := service.NewEventBus()
	deals := service.NewDealService(region.Default(), bus)
	deals.Replace(records(), "test")
	sessions := NewSessions(deals, bus, DefaultOptions)
	v := sessions.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, 0)
		close(done)
	}()
	require.Eventually(t, func() bool { return deals.Watchers() == 1 }, time.Second, time.Millisecond)

	deals.Replace(records()[:2], "smaller")
	assert.Eventually(t, func() bool { return v.View().Count == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, deals.Watchers())
}

func TestSessionsRunSeesEveryReloadWithManyViewers(t *testing.T) {
	bus := service.NewEventBus()
	deals := service.NewDealService(region.Default(), bus)
	deals.Replace(records(), "test")
	sessions := NewSessions(deals, bus, DefaultOptions)
	viewers := make([]*Viewer, 40)
	for i := range viewers {
		viewers[i] = sessions.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, 0)
		close(done)
	}()
	require.Eventually(t, func() bool { return deals.Watchers() == 1 }, time.Second, time.Millisecond)

	// Each refresh publishes one selection event per viewer on the bus,
	// far more than a bus subscription buffers.
	deals.Replace(records()[:3], "first")
	deals.Replace(records()[:1], "second")

	assert.Eventually(t, func() bool {
		for _, v := range viewers {
			if v.View().Count != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
