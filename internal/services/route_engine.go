package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/railconnect/route-finder/internal/models"
	"github.com/railconnect/route-finder/pkg/railtime"
	"github.com/sirupsen/logrus"
)

// ErrTimetableUnavailable is returned when the timetable store cannot be read
var ErrTimetableUnavailable = errors.New("timetable unavailable")

// Search limits
const (
	MinLayoverMins       = 15
	MaxLayoverMins       = 720
	MaxResults           = 250
	DefaultMaxCandidates = 5000
)

// TimetableStore is the read side of the timetable used by the route engine
type TimetableStore interface {
	StopsAt(ctx context.Context, stationCode string) ([]models.StopEvent, error)
	StopsAtStations(ctx context.Context, stationCodes []string) ([]models.StopEvent, error)
	// TrainStops returns each train's stops ordered by stop number
	TrainStops(ctx context.Context, trainNumbers []string) (map[string][]models.StopEvent, error)
	Trains(ctx context.Context, trainNumbers []string) (map[string]models.Train, error)
	Stations(ctx context.Context, stationCodes []string) (map[string]models.Station, error)
	BusiestStations(ctx context.Context, limit int) ([]string, error)
}

// RouteEngine enumerates direct, one-switch and two-switch itineraries
type RouteEngine struct {
	store         TimetableStore
	maxCandidates int
	logger        *logrus.Logger
}

// NewRouteEngine creates a new route engine
func NewRouteEngine(store TimetableStore, maxCandidates int, logger *logrus.Logger) *RouteEngine {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &RouteEngine{
		store:         store,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// Search finds itineraries between two resolved station codes.
// The result is ranked by q.Criteria and holds at most MaxResults routes.
func (e *RouteEngine) Search(ctx context.Context, q *models.ParsedRouteQuery) ([]models.Route, error) {
	if q.Source == q.Destination {
		return []models.Route{}, nil
	}

	srcStops, err := e.store.StopsAt(ctx, q.Source)
	if err != nil {
		return nil, timetableError(err)
	}
	dstStops, err := e.store.StopsAt(ctx, q.Destination)
	if err != nil {
		return nil, timetableError(err)
	}

	s := &routeSearch{
		query:         q,
		maxCandidates: e.maxCandidates,
		directTrains:  make(map[string]bool),
		itineraries:   make(map[string][]models.StopEvent),
		minDirect:     -1,
	}

	directs := s.findDirect(srcStops, dstStops)

	var (
		oneSwitch []models.ConnectingRoute
		twoSwitch []models.TwoSwitchRoute
	)
	if s.minDirect >= 0 && (q.Switches.Has(1) || q.Switches.Has(2)) {
		if err := s.loadConnections(ctx, e.store, srcStops, dstStops); err != nil {
			return nil, timetableError(err)
		}
		if q.Switches.Has(1) {
			oneSwitch = s.findOneSwitch()
		}
		if q.Switches.Has(2) {
			if err := s.loadMiddleTrains(ctx, e.store); err != nil {
				return nil, timetableError(err)
			}
			twoSwitch = s.findTwoSwitch()
		}
	}

	var routes []models.Route
	if q.Switches.Has(0) {
		for _, r := range directs {
			routes = append(routes, r)
		}
	}
	for _, r := range oneSwitch {
		routes = append(routes, r)
	}
	for _, r := range twoSwitch {
		routes = append(routes, r)
	}

	routes = dedupRoutes(routes)
	if len(routes) == 0 {
		return []models.Route{}, nil
	}

	routes, err = e.attachNames(ctx, routes)
	if err != nil {
		return nil, timetableError(err)
	}

	rankRoutes(routes, q.Criteria)
	if len(routes) > MaxResults {
		routes = routes[:MaxResults]
	}

	e.logger.WithFields(logrus.Fields{
		"source":      q.Source,
		"destination": q.Destination,
		"direct":      len(directs),
		"one_switch":  len(oneSwitch),
		"two_switch":  len(twoSwitch),
		"examined":    s.examined,
		"truncated":   s.truncated,
	}).Debug("Route enumeration finished")

	return routes, nil
}

func timetableError(err error) error {
	return fmt.Errorf("%w: %w", ErrTimetableUnavailable, err)
}

// boardOption is a train boarded at some station that later reaches the destination
type boardOption struct {
	train  string
	board  models.StopEvent
	alight models.StopEvent
}

// boardRef points at a departure inside a train itinerary
type boardRef struct {
	train string
	idx   int
}

// routeSearch holds the per-request indices of one search
type routeSearch struct {
	query         *models.ParsedRouteQuery
	maxCandidates int

	minDirect    int
	directTrains map[string]bool

	itineraries   map[string][]models.StopEvent
	originTrains  []string
	toDestination map[string][]boardOption

	firstTransfers map[string]bool
	boardAt        map[string][]boardRef

	examined  int
	truncated bool
}

func (s *routeSearch) findDirect(srcStops, dstStops []models.StopEvent) []models.DirectRoute {
	arrivals := make(map[string][]models.StopEvent)
	for _, d := range dstStops {
		if d.HasArrival() {
			arrivals[d.TrainNumber] = append(arrivals[d.TrainNumber], d)
		}
	}

	sortStops(srcStops)
	var routes []models.DirectRoute
	for _, board := range srcStops {
		if !board.HasDeparture() {
			continue
		}
		for _, alight := range arrivals[board.TrainNumber] {
			if alight.StopNumber <= board.StopNumber {
				continue
			}
			departure, err := railtime.Anchor(s.query.Date, board.Departure())
			if err != nil {
				continue
			}
			duration, ok := legDuration(board, alight)
			if !ok {
				continue
			}

			routes = append(routes, models.DirectRoute{
				TrainNumber:  board.TrainNumber,
				Departure:    models.Timestamp(departure),
				Arrival:      models.Timestamp(railtime.Advance(departure, duration)),
				DurationMins: duration,
			})
			s.directTrains[board.TrainNumber] = true
			if s.minDirect < 0 || duration < s.minDirect {
				s.minDirect = duration
			}
		}
	}
	return routes
}

// loadConnections fetches the itineraries of the non-direct trains serving
// the source and the destination and indexes where the destination can be reached.
func (s *routeSearch) loadConnections(ctx context.Context, store TimetableStore, srcStops, dstStops []models.StopEvent) error {
	s.originTrains = s.distinctTrains(srcStops, (*models.StopEvent).HasDeparture)
	destTrains := s.distinctTrains(dstStops, (*models.StopEvent).HasArrival)

	if err := s.fetchItineraries(ctx, store, append(append([]string{}, s.originTrains...), destTrains...)); err != nil {
		return err
	}

	s.toDestination = make(map[string][]boardOption)
	for _, train := range destTrains {
		stops := s.itineraries[train]
		for j, alight := range stops {
			if alight.StationCode != s.query.Destination || !alight.HasArrival() {
				continue
			}
			for i := 0; i < j; i++ {
				board := stops[i]
				if !board.HasDeparture() || board.StationCode == s.query.Source {
					continue
				}
				s.toDestination[board.StationCode] = append(s.toDestination[board.StationCode], boardOption{
					train:  train,
					board:  board,
					alight: alight,
				})
			}
		}
	}
	return nil
}

// loadMiddleTrains indexes every departure at a station an origin train can reach
func (s *routeSearch) loadMiddleTrains(ctx context.Context, store TimetableStore) error {
	s.firstTransfers = make(map[string]bool)
	for _, train := range s.originTrains {
		s.eachOriginLeg(train, func(_, alight models.StopEvent) {
			s.firstTransfers[alight.StationCode] = true
		})
	}
	if len(s.firstTransfers) == 0 {
		return nil
	}

	stations := sortedKeys(s.firstTransfers)
	stops, err := store.StopsAtStations(ctx, stations)
	if err != nil {
		return err
	}
	middle := s.distinctTrains(stops, (*models.StopEvent).HasDeparture)
	if err := s.fetchItineraries(ctx, store, middle); err != nil {
		return err
	}

	s.boardAt = make(map[string][]boardRef)
	for _, train := range middle {
		for idx, stop := range s.itineraries[train] {
			if stop.HasDeparture() && s.firstTransfers[stop.StationCode] {
				s.boardAt[stop.StationCode] = append(s.boardAt[stop.StationCode], boardRef{train: train, idx: idx})
			}
		}
	}
	return nil
}

func (s *routeSearch) fetchItineraries(ctx context.Context, store TimetableStore, trains []string) error {
	var missing []string
	for _, train := range trains {
		if _, ok := s.itineraries[train]; !ok {
			missing = append(missing, train)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := store.TrainStops(ctx, missing)
	if err != nil {
		return err
	}
	for _, train := range missing {
		stops := fetched[train]
		sortStops(stops)
		s.itineraries[train] = stops
	}
	return nil
}

// eachOriginLeg calls fn for every (board at source, later arrival) pair of a train
func (s *routeSearch) eachOriginLeg(train string, fn func(board, alight models.StopEvent)) {
	stops := s.itineraries[train]
	for i, board := range stops {
		if board.StationCode != s.query.Source || !board.HasDeparture() {
			continue
		}
		for j := i + 1; j < len(stops); j++ {
			if stops[j].HasArrival() && stops[j].StationCode != s.query.Source {
				fn(board, stops[j])
			}
		}
	}
}

func (s *routeSearch) findOneSwitch() []models.ConnectingRoute {
	var routes []models.ConnectingRoute
	seen := make(map[string]int)

	for _, trainA := range s.originTrains {
		s.eachOriginLeg(trainA, func(boardA, alightA models.StopEvent) {
			for _, opt := range s.toDestination[alightA.StationCode] {
				if opt.train == trainA {
					continue
				}
				route, ok := s.connectingRoute(boardA, alightA, opt)
				if !ok {
					continue
				}

				key := unorderedKey(trainA, opt.train)
				if idx, dup := seen[key]; dup {
					if route.TotalDuration < routes[idx].TotalDuration {
						routes[idx] = route
					}
					continue
				}
				seen[key] = len(routes)
				routes = append(routes, route)
			}
		})
	}
	return routes
}

func (s *routeSearch) connectingRoute(boardA, alightA models.StopEvent, opt boardOption) (models.ConnectingRoute, bool) {
	legA, ok := legDuration(boardA, alightA)
	if !ok {
		return models.ConnectingRoute{}, false
	}
	layover, ok := layoverAt(alightA, opt.board)
	if !ok {
		return models.ConnectingRoute{}, false
	}
	legB, ok := legDuration(opt.board, opt.alight)
	if !ok {
		return models.ConnectingRoute{}, false
	}

	total := legA + layover + legB
	if total*4 > s.minDirect*5 {
		return models.ConnectingRoute{}, false
	}

	departure, err := railtime.Anchor(s.query.Date, boardA.Departure())
	if err != nil {
		return models.ConnectingRoute{}, false
	}
	leg1 := newLeg(boardA, alightA, departure, legA)
	leg2 := newLeg(opt.board, opt.alight, railtime.Advance(leg1.Arrival.Time(), layover), legB)

	return models.ConnectingRoute{
		Leg1:            leg1,
		LayoverMins:     layover,
		TransferStation: alightA.StationCode,
		Leg2:            leg2,
		TotalDuration:   total,
	}, true
}

func (s *routeSearch) findTwoSwitch() []models.TwoSwitchRoute {
	var routes []models.TwoSwitchRoute
	seen := make(map[string]int)
	bound := s.minDirect * 3 // total*2 must not exceed this

	for _, trainA := range s.originTrains {
		if s.truncated {
			break
		}
		s.eachOriginLeg(trainA, func(boardA, alightA models.StopEvent) {
			if s.truncated {
				return
			}
			legA, ok := legDuration(boardA, alightA)
			if !ok || legA*2 > bound {
				return
			}

			for _, ref := range s.boardAt[alightA.StationCode] {
				if ref.train == trainA || s.directTrains[ref.train] {
					continue
				}
				middle := s.itineraries[ref.train]
				boardB := middle[ref.idx]
				layover1, ok := layoverAt(alightA, boardB)
				if !ok || (legA+layover1)*2 > bound {
					continue
				}

				for k := ref.idx + 1; k < len(middle); k++ {
					alightB := middle[k]
					if !alightB.HasArrival() || alightB.StationCode == s.query.Source {
						continue
					}
					legB, ok := legDuration(boardB, alightB)
					if !ok || (legA+layover1+legB)*2 > bound {
						continue
					}

					for _, opt := range s.toDestination[alightB.StationCode] {
						if opt.train == ref.train {
							continue
						}
						s.examined++
						if s.examined > s.maxCandidates {
							s.truncated = true
							return
						}

						layover2, ok := layoverAt(alightB, opt.board)
						if !ok {
							continue
						}
						legC, ok := legDuration(opt.board, opt.alight)
						if !ok {
							continue
						}
						total := legA + layover1 + legB + layover2 + legC
						if total*2 > bound {
							continue
						}

						departure, err := railtime.Anchor(s.query.Date, boardA.Departure())
						if err != nil {
							continue
						}
						leg1 := newLeg(boardA, alightA, departure, legA)
						leg2 := newLeg(boardB, alightB, railtime.Advance(leg1.Arrival.Time(), layover1), legB)
						leg3 := newLeg(opt.board, opt.alight, railtime.Advance(leg2.Arrival.Time(), layover2), legC)

						route := models.TwoSwitchRoute{
							Leg1:             leg1,
							LayoverMins:      layover1,
							TransferStation:  alightA.StationCode,
							Leg2:             leg2,
							LayoverMins2:     layover2,
							TransferStation2: alightB.StationCode,
							Leg3:             leg3,
							TotalDuration:    total,
						}

						key := strings.Join([]string{trainA, ref.train, opt.train}, "|")
						if idx, dup := seen[key]; dup {
							if total < routes[idx].TotalDuration {
								routes[idx] = route
							}
							continue
						}
						seen[key] = len(routes)
						routes = append(routes, route)
					}
				}
			}
		})
	}
	return routes
}

// distinctTrains returns the sorted non-direct trains of stops matching keep
func (s *routeSearch) distinctTrains(stops []models.StopEvent, keep func(*models.StopEvent) bool) []string {
	set := make(map[string]bool)
	for i := range stops {
		if keep(&stops[i]) && !s.directTrains[stops[i].TrainNumber] {
			set[stops[i].TrainNumber] = true
		}
	}
	return sortedKeys(set)
}

// attachNames fills train and transfer station display names
func (e *RouteEngine) attachNames(ctx context.Context, routes []models.Route) ([]models.Route, error) {
	trainSet := make(map[string]bool)
	stationSet := make(map[string]bool)
	for _, route := range routes {
		for _, number := range route.TrainNumbers() {
			trainSet[number] = true
		}
		switch r := route.(type) {
		case models.ConnectingRoute:
			stationSet[r.TransferStation] = true
		case models.TwoSwitchRoute:
			stationSet[r.TransferStation] = true
			stationSet[r.TransferStation2] = true
		}
	}

	trains, err := e.store.Trains(ctx, sortedKeys(trainSet))
	if err != nil {
		return nil, err
	}
	var stations map[string]models.Station
	if len(stationSet) > 0 {
		stations, err = e.store.Stations(ctx, sortedKeys(stationSet))
		if err != nil {
			return nil, err
		}
	}

	named := make([]models.Route, len(routes))
	for i, route := range routes {
		switch r := route.(type) {
		case models.DirectRoute:
			r.TrainName = trains[r.TrainNumber].Name
			named[i] = r
		case models.ConnectingRoute:
			r.Leg1.TrainName = trains[r.Leg1.TrainNumber].Name
			r.Leg2.TrainName = trains[r.Leg2.TrainNumber].Name
			r.TransferStationName = stations[r.TransferStation].Name
			named[i] = r
		case models.TwoSwitchRoute:
			r.Leg1.TrainName = trains[r.Leg1.TrainNumber].Name
			r.Leg2.TrainName = trains[r.Leg2.TrainNumber].Name
			r.Leg3.TrainName = trains[r.Leg3.TrainNumber].Name
			r.TransferStationName = stations[r.TransferStation].Name
			r.TransferStationName2 = stations[r.TransferStation2].Name
			named[i] = r
		default:
			named[i] = route
		}
	}
	return named, nil
}

// dedupRoutes keeps one route per (variant, train tuple), the shortest one,
// at the position of its first occurrence
func dedupRoutes(routes []models.Route) []models.Route {
	seen := make(map[string]int, len(routes))
	result := make([]models.Route, 0, len(routes))
	for _, route := range routes {
		key := string(route.Type()) + ":" + strings.Join(route.TrainNumbers(), "|")
		if idx, dup := seen[key]; dup {
			if route.TotalDurationMins() < result[idx].TotalDurationMins() {
				result[idx] = route
			}
			continue
		}
		seen[key] = len(result)
		result = append(result, route)
	}
	return result
}

// rankRoutes orders routes in place. Ties keep their enumeration order.
func rankRoutes(routes []models.Route, criteria string) {
	sort.SliceStable(routes, func(i, j int) bool {
		if criteria == models.CriteriaFewestSwitches {
			return routes[i].Switches() < routes[j].Switches()
		}
		return routes[i].TotalDurationMins() < routes[j].TotalDurationMins()
	})
}

func legDuration(board, alight models.StopEvent) (int, bool) {
	minutes, err := railtime.JourneyDuration(board.Departure(), board.DayCount, alight.Arrival(), alight.DayCount)
	if err != nil || minutes < 0 {
		return 0, false
	}
	return minutes, true
}

func layoverAt(arrival, departure models.StopEvent) (int, bool) {
	minutes, err := railtime.Layover(arrival.Arrival(), departure.Departure())
	if err != nil || minutes < MinLayoverMins || minutes > MaxLayoverMins {
		return 0, false
	}
	return minutes, true
}

func newLeg(board, alight models.StopEvent, departure time.Time, minutes int) models.Leg {
	return models.Leg{
		TrainNumber: board.TrainNumber,
		From:        board.StationCode,
		To:          alight.StationCode,
		Departure:   models.Timestamp(departure),
		Arrival:     models.Timestamp(railtime.Advance(departure, minutes)),
	}
}

func unorderedKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func sortStops(stops []models.StopEvent) {
	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].TrainNumber != stops[j].TrainNumber {
			return stops[i].TrainNumber < stops[j].TrainNumber
		}
		return stops[i].StopNumber < stops[j].StopNumber
	})
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
