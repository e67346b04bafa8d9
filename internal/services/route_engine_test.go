package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/railconnect/route-finder/internal/models"
	"github.com/railconnect/route-finder/pkg/railtime"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimetable is an in-memory TimetableStore
type fakeTimetable struct {
	stops    []models.StopEvent
	trains   map[string]models.Train
	stations map[string]models.Station
	err      error
	calls    int
	// gate, when set, holds BusiestStations until it is closed
	gate chan struct{}
}

func (f *fakeTimetable) StopsAt(_ context.Context, code string) ([]models.StopEvent, error) {
	return f.StopsAtStations(context.Background(), []string{code})
}

func (f *fakeTimetable) StopsAtStations(_ context.Context, codes []string) ([]models.StopEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var result []models.StopEvent
	for _, s := range f.stops {
		if want[s.StationCode] {
			result = append(result, s)
		}
	}
	return result, nil
}

func (f *fakeTimetable) TrainStops(_ context.Context, numbers []string) (map[string][]models.StopEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	result := make(map[string][]models.StopEvent)
	for _, s := range f.stops {
		if want[s.TrainNumber] {
			result[s.TrainNumber] = append(result[s.TrainNumber], s)
		}
	}
	for _, stops := range result {
		sort.Slice(stops, func(i, j int) bool { return stops[i].StopNumber < stops[j].StopNumber })
	}
	return result, nil
}

func (f *fakeTimetable) Trains(_ context.Context, numbers []string) (map[string]models.Train, error) {
	f.calls++
	result := make(map[string]models.Train)
	for _, n := range numbers {
		if t, ok := f.trains[n]; ok {
			result[n] = t
		}
	}
	return result, f.err
}

func (f *fakeTimetable) Stations(_ context.Context, codes []string) (map[string]models.Station, error) {
	f.calls++
	result := make(map[string]models.Station)
	for _, c := range codes {
		if s, ok := f.stations[c]; ok {
			result[c] = s
		}
	}
	return result, f.err
}

func (f *fakeTimetable) BusiestStations(_ context.Context, limit int) ([]string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	counts := make(map[string]int)
	for _, s := range f.stops {
		counts[s.StationCode]++
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})
	if len(codes) > limit {
		codes = codes[:limit]
	}
	return codes, nil
}

func strPtr(s string) *string { return &s }

// stop builds a StopEvent; "" means the time is absent
func stop(train, station, arr, dep string, day, number int) models.StopEvent {
	ev := models.StopEvent{TrainNumber: train, StationCode: station, DayCount: day, StopNumber: number}
	if arr != "" {
		ev.ArrivalTime = strPtr(arr)
	}
	if dep != "" {
		ev.DepartureTime = strPtr(dep)
	}
	return ev
}

// newDelhiMumbaiTimetable has one direct train of 960 minutes, one valid
// single-switch itinerary at KOTA and one valid double-switch itinerary.
func newDelhiMumbaiTimetable() *fakeTimetable {
	return &fakeTimetable{
		stops: []models.StopEvent{
			// Direct: NDLS 16:55 -> BCT 08:55 next day
			stop("12952", "NDLS", "", "16:55", 1, 1),
			stop("12952", "KOTA", "21:30", "21:40", 1, 2),
			stop("12952", "BCT", "08:55", "", 2, 3),

			stop("11057", "NDLS", "", "06:00", 1, 1),
			stop("11057", "KOTA", "12:00", "12:05", 1, 2),
			stop("11057", "RTM", "16:00", "", 1, 3),

			stop("12904", "KOTA", "", "13:00", 1, 1),
			stop("12904", "BCT", "02:00", "", 2, 2),

			// Leaves KOTA before the minimum layover
			stop("19019", "KOTA", "", "12:10", 1, 1),
			stop("19019", "BCT", "23:00", "", 1, 2),

			stop("22210", "KOTA", "", "12:30", 1, 1),
			stop("22210", "RTM", "15:30", "", 1, 2),

			stop("12980", "RTM", "", "16:00", 1, 1),
			stop("12980", "BCT", "22:00", "", 1, 2),
		},
		trains: map[string]models.Train{
			"12952": {Number: "12952", Name: "Mumbai Rajdhani"},
			"11057": {Number: "11057", Name: "Pathankot Express"},
			"12904": {Number: "12904", Name: "Golden Temple Mail"},
			"22210": {Number: "22210", Name: "Duronto Express"},
			"12980": {Number: "12980", Name: "Jaipur Superfast"},
		},
		stations: map[string]models.Station{
			"KOTA": {Code: "KOTA", Name: "Kota Jn"},
			"RTM":  {Code: "RTM", Name: "Ratlam Jn"},
		},
	}
}

func newTestEngine(store TimetableStore) *RouteEngine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRouteEngine(store, 0, logger)
}

func parsedQuery(t *testing.T, src, dst, date, criteria string, switches ...int) *models.ParsedRouteQuery {
	t.Helper()
	d, err := railtime.ParseDate(date)
	require.NoError(t, err)
	return &models.ParsedRouteQuery{
		Source:      src,
		Destination: dst,
		Date:        d,
		Criteria:    criteria,
		Switches:    models.NewSwitchSet(switches...),
	}
}

func TestRouteEngine_AllSwitches(t *testing.T) {
	engine := newTestEngine(newDelhiMumbaiTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 0, 1, 2))
	require.NoError(t, err)
	require.Len(t, routes, 3)

	direct, ok := routes[0].(models.DirectRoute)
	require.True(t, ok, "direct route ranks first")
	assert.Equal(t, "12952", direct.TrainNumber)
	assert.Equal(t, "Mumbai Rajdhani", direct.TrainName)
	assert.Equal(t, 960, direct.DurationMins)
	assert.Equal(t, "2026-03-01 16:55:00", direct.Departure.String())
	assert.Equal(t, "2026-03-02 08:55:00", direct.Arrival.String())

	two, ok := routes[1].(models.TwoSwitchRoute)
	require.True(t, ok)
	assert.Equal(t, []string{"11057", "22210", "12980"}, two.TrainNumbers())
	assert.Equal(t, 960, two.TotalDuration)
	assert.Equal(t, 30, two.LayoverMins)
	assert.Equal(t, 30, two.LayoverMins2)
	assert.Equal(t, "Kota Jn", two.TransferStationName)
	assert.Equal(t, "Ratlam Jn", two.TransferStationName2)
	assert.Equal(t, "2026-03-01 22:00:00", two.Leg3.Arrival.String())

	one, ok := routes[2].(models.ConnectingRoute)
	require.True(t, ok)
	assert.Equal(t, []string{"11057", "12904"}, one.TrainNumbers())
	assert.Equal(t, 1200, one.TotalDuration)
	assert.Equal(t, 60, one.LayoverMins)
	assert.Equal(t, "KOTA", one.TransferStation)
	assert.Equal(t, "2026-03-01 06:00:00", one.Leg1.Departure.String())
	assert.Equal(t, "2026-03-01 13:00:00", one.Leg2.Departure.String())
	assert.Equal(t, "2026-03-02 02:00:00", one.Leg2.Arrival.String())
}

func TestRouteEngine_DurationBounds(t *testing.T) {
	engine := newTestEngine(newDelhiMumbaiTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 0, 1, 2))
	require.NoError(t, err)

	minDirect := 960
	for _, r := range routes {
		switch r.Switches() {
		case 1:
			assert.LessOrEqual(t, r.TotalDurationMins(), minDirect*5/4)
		case 2:
			assert.LessOrEqual(t, r.TotalDurationMins(), minDirect*3/2)
		}
	}
}

func TestRouteEngine_FewestSwitches(t *testing.T) {
	engine := newTestEngine(newDelhiMumbaiTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFewestSwitches, 0, 1, 2))
	require.NoError(t, err)
	require.Len(t, routes, 3)

	for i := 1; i < len(routes); i++ {
		assert.LessOrEqual(t, routes[i-1].Switches(), routes[i].Switches())
	}
	assert.Equal(t, models.RouteDirect, routes[0].Type())
	assert.Equal(t, models.RouteConnecting, routes[1].Type())
	assert.Equal(t, models.RouteConnecting2, routes[2].Type())
}

func TestRouteEngine_SwitchSetFiltersBuckets(t *testing.T) {
	tests := []struct {
		name     string
		switches []int
		expected []models.RouteType
	}{
		{"Direct only", []int{0}, []models.RouteType{models.RouteDirect}},
		{"Default", []int{0, 1}, []models.RouteType{models.RouteDirect, models.RouteConnecting}},
		{"Two switches only", []int{2}, []models.RouteType{models.RouteConnecting2}},
		{"Connections only", []int{1, 2}, []models.RouteType{models.RouteConnecting2, models.RouteConnecting}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(newDelhiMumbaiTimetable())
			routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, tt.switches...))
			require.NoError(t, err)

			types := make([]models.RouteType, 0, len(routes))
			for _, r := range routes {
				types = append(types, r.Type())
			}
			assert.Equal(t, tt.expected, types)
		})
	}
}

func TestRouteEngine_ExcludesDirectTrainsFromConnections(t *testing.T) {
	engine := newTestEngine(newDelhiMumbaiTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 1, 2))
	require.NoError(t, err)
	require.NotEmpty(t, routes)

	for _, r := range routes {
		assert.NotContains(t, r.TrainNumbers(), "12952")
	}
}

func TestRouteEngine_LayoverBounds(t *testing.T) {
	engine := newTestEngine(newDelhiMumbaiTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 1, 2))
	require.NoError(t, err)

	for _, r := range routes {
		switch v := r.(type) {
		case models.ConnectingRoute:
			assert.GreaterOrEqual(t, v.LayoverMins, MinLayoverMins)
			assert.LessOrEqual(t, v.LayoverMins, MaxLayoverMins)
			assert.NotContains(t, v.TrainNumbers(), "19019", "12:10 departure leaves a 10 minute layover")
		case models.TwoSwitchRoute:
			for _, l := range []int{v.LayoverMins, v.LayoverMins2} {
				assert.GreaterOrEqual(t, l, MinLayoverMins)
				assert.LessOrEqual(t, l, MaxLayoverMins)
			}
		}
	}
}

func TestRouteEngine_NoDirectMeansNoConnections(t *testing.T) {
	store := newDelhiMumbaiTimetable()
	var kept []models.StopEvent
	for _, s := range store.stops {
		if s.TrainNumber != "12952" {
			kept = append(kept, s)
		}
	}
	store.stops = kept
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 0, 1, 2))
	require.NoError(t, err)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)
}

func TestRouteEngine_SameStation(t *testing.T) {
	store := newDelhiMumbaiTimetable()
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "NDLS", "2026-03-01", models.CriteriaFastest, 0, 1, 2))
	require.NoError(t, err)
	assert.Empty(t, routes)
	assert.Zero(t, store.calls, "no store lookups for identical stations")
}

func TestRouteEngine_MidnightRollover(t *testing.T) {
	store := &fakeTimetable{
		stops: []models.StopEvent{
			stop("14001", "AAA", "", "23:50", 1, 1),
			stop("14001", "BBB", "00:10", "", 2, 2),
		},
	}
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "AAA", "BBB", "2024-12-31", models.CriteriaFastest, 0))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	direct := routes[0].(models.DirectRoute)
	assert.Equal(t, 20, direct.DurationMins)
	assert.Equal(t, "2024-12-31 23:50:00", direct.Departure.String())
	assert.Equal(t, "2025-01-01 00:10:00", direct.Arrival.String())
}

func TestRouteEngine_SkipsMalformedTimes(t *testing.T) {
	store := &fakeTimetable{
		stops: []models.StopEvent{
			stop("10001", "AAA", "", "25:99", 1, 1),
			stop("10001", "BBB", "06:00", "", 1, 2),
			stop("10002", "AAA", "", "05:00", 1, 1),
			stop("10002", "BBB", "06:00", "", 1, 2),
		},
	}
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "AAA", "BBB", "2026-03-01", models.CriteriaFastest, 0))
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"10002"}, routes[0].TrainNumbers())
}

func TestRouteEngine_TruncatesResults(t *testing.T) {
	store := &fakeTimetable{}
	for i := 0; i < 300; i++ {
		train := fmt.Sprintf("%05d", 20000+i)
		dep := fmt.Sprintf("%02d:%02d", (i/60)%24, i%60)
		store.stops = append(store.stops,
			stop(train, "AAA", "", dep, 1, 1),
			stop(train, "BBB", "23:59", "", 1, 2),
		)
	}
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "AAA", "BBB", "2026-03-01", models.CriteriaFastest, 0))
	require.NoError(t, err)
	assert.Len(t, routes, MaxResults)
	for i := 1; i < len(routes); i++ {
		assert.LessOrEqual(t, routes[i-1].TotalDurationMins(), routes[i].TotalDurationMins())
	}
}

func TestRouteEngine_StoreFailure(t *testing.T) {
	store := newDelhiMumbaiTimetable()
	store.err = errors.New("connection reset")
	engine := newTestEngine(store)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "NDLS", "BCT", "2026-03-01", models.CriteriaFastest, 0, 1))
	assert.Nil(t, routes)
	assert.ErrorIs(t, err, ErrTimetableUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

// newLoopingConnectionTimetable lets 19033 and 12010 connect at ANND and at
// BRC. 19033 calls at ADI twice, so its second departure yields the shortest
// instance of the pair even though it is enumerated last.
func newLoopingConnectionTimetable() *fakeTimetable {
	return &fakeTimetable{
		stops: []models.StopEvent{
			// Direct: ADI 05:00 -> BCT 10:00, 300 minutes
			stop("12902", "ADI", "", "05:00", 1, 1),
			stop("12902", "BCT", "10:00", "", 1, 2),

			stop("19033", "ADI", "", "06:00", 1, 1),
			stop("19033", "ANND", "07:00", "07:05", 1, 2),
			stop("19033", "ADI", "07:20", "08:05", 1, 3),
			stop("19033", "BRC", "09:00", "09:05", 1, 4),
			stop("19033", "VAPI", "10:00", "", 1, 5),

			stop("12010", "ANND", "", "07:30", 1, 1),
			stop("12010", "BRC", "09:20", "09:30", 1, 2),
			stop("12010", "BCT", "11:00", "", 1, 3),
		},
	}
}

func TestRouteEngine_OneSwitchKeepsShortestPerTrainPair(t *testing.T) {
	engine := newTestEngine(newLoopingConnectionTimetable())

	routes, err := engine.Search(context.Background(), parsedQuery(t, "ADI", "BCT", "2026-03-01", models.CriteriaFastest, 1))
	require.NoError(t, err)
	require.Len(t, routes, 1, "ANND and BRC instances of the same pair collapse")

	one, ok := routes[0].(models.ConnectingRoute)
	require.True(t, ok)
	assert.Equal(t, []string{"19033", "12010"}, one.TrainNumbers())
	assert.Equal(t, 175, one.TotalDuration)
	assert.Equal(t, "BRC", one.TransferStation)
	assert.Equal(t, 30, one.LayoverMins)
	assert.Equal(t, "2026-03-01 08:05:00", one.Leg1.Departure.String())
	assert.Equal(t, "2026-03-01 11:00:00", one.Leg2.Arrival.String())
}

// newDoubleTransferTimetable lets 12841, 12703 and 12663 chain through
// KGP or BBS and then VSKP or BZA. 12841 calls at HWH twice; boarding it the
// second time and changing at BBS then VSKP is the shortest instance.
func newDoubleTransferTimetable() *fakeTimetable {
	return &fakeTimetable{
		stops: []models.StopEvent{
			// Direct: HWH 05:00 -> MAS 09:00, 240 minutes
			stop("12839", "HWH", "", "05:00", 1, 1),
			stop("12839", "MAS", "09:00", "", 1, 2),

			stop("12841", "HWH", "", "06:00", 1, 1),
			stop("12841", "KGP", "07:00", "07:05", 1, 2),
			stop("12841", "HWH", "07:20", "07:25", 1, 3),
			stop("12841", "BBS", "08:00", "", 1, 4),

			stop("12703", "KGP", "", "07:30", 1, 1),
			stop("12703", "BBS", "08:10", "08:15", 1, 2),
			stop("12703", "VSKP", "09:00", "09:05", 1, 3),
			stop("12703", "BZA", "10:00", "", 1, 4),

			stop("12663", "VSKP", "", "09:30", 1, 1),
			stop("12663", "BZA", "10:20", "10:30", 1, 2),
			stop("12663", "MAS", "11:30", "", 1, 3),
		},
	}
}

func TestRouteEngine_TwoSwitchKeepsShortestPerTrainTriple(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	engine := NewRouteEngine(newDoubleTransferTimetable(), 0, logger)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "HWH", "MAS", "2026-03-01", models.CriteriaFastest, 2))
	require.NoError(t, err)
	require.Len(t, routes, 1, "six transfer combinations of one train triple collapse")

	two, ok := routes[0].(models.TwoSwitchRoute)
	require.True(t, ok)
	assert.Equal(t, []string{"12841", "12703", "12663"}, two.TrainNumbers())
	assert.Equal(t, 245, two.TotalDuration)
	assert.Equal(t, "BBS", two.TransferStation)
	assert.Equal(t, 15, two.LayoverMins)
	assert.Equal(t, "VSKP", two.TransferStation2)
	assert.Equal(t, "2026-03-01 07:25:00", two.Leg1.Departure.String())
	assert.Equal(t, "2026-03-01 11:30:00", two.Leg3.Arrival.String())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, 6, entry.Data["examined"])
	assert.Equal(t, false, entry.Data["truncated"])
}

func TestRouteEngine_CandidateCapStopsEnumeration(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	engine := NewRouteEngine(newDoubleTransferTimetable(), 1, logger)

	routes, err := engine.Search(context.Background(), parsedQuery(t, "HWH", "MAS", "2026-03-01", models.CriteriaFastest, 2))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	// Only the first path, via KGP and VSKP from the 06:00 departure, is joined
	two := routes[0].(models.TwoSwitchRoute)
	assert.Equal(t, 330, two.TotalDuration)
	assert.Equal(t, "KGP", two.TransferStation)
	assert.Equal(t, "VSKP", two.TransferStation2)
	assert.Equal(t, "2026-03-01 06:00:00", two.Leg1.Departure.String())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, true, entry.Data["truncated"])
}

func TestDedupRoutes_KeepsShortest(t *testing.T) {
	routes := []models.Route{
		models.ConnectingRoute{Leg1: models.Leg{TrainNumber: "A"}, Leg2: models.Leg{TrainNumber: "B"}, TotalDuration: 500},
		models.DirectRoute{TrainNumber: "C", DurationMins: 450},
		models.ConnectingRoute{Leg1: models.Leg{TrainNumber: "A"}, Leg2: models.Leg{TrainNumber: "B"}, TotalDuration: 400},
	}

	deduped := dedupRoutes(routes)
	require.Len(t, deduped, 2)
	assert.Equal(t, 400, deduped[0].TotalDurationMins())
	assert.Equal(t, models.RouteDirect, deduped[1].Type())
}

func TestUnorderedKey(t *testing.T) {
	assert.Equal(t, unorderedKey("12904", "11057"), unorderedKey("11057", "12904"))
	assert.NotEqual(t, unorderedKey("11057", "12904"), unorderedKey("11057", "12980"))
}
