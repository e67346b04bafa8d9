package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/railconnect/route-finder/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrPrecomputeRunning is returned when a run is already in progress
var ErrPrecomputeRunning = errors.New("precompute already running")

// PrecomputeConfig controls which pairs are precomputed
type PrecomputeConfig struct {
	CanonicalDate time.Time
	TopStations   int
	TopK          int
}

// PrecomputeSummary describes one precompute run
type PrecomputeSummary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Stations   int       `json:"stations"`
	Pairs      int       `json:"pairs"`
	Stored     int       `json:"stored"`
	Empty      int       `json:"empty"`
	Failed     int       `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
}

// PrecomputeService fills the route cache for the busiest station pairs
// at the canonical date
type PrecomputeService struct {
	engine    *RouteEngine
	timetable TimetableStore
	cache     RouteCacheStore
	config    PrecomputeConfig
	logger    *logrus.Logger

	mu      sync.Mutex
	running bool
	last    *PrecomputeSummary
}

// NewPrecomputeService creates a new precompute service
func NewPrecomputeService(
	engine *RouteEngine,
	timetable TimetableStore,
	cache RouteCacheStore,
	config PrecomputeConfig,
	logger *logrus.Logger,
) *PrecomputeService {
	return &PrecomputeService{
		engine:    engine,
		timetable: timetable,
		cache:     cache,
		config:    config,
		logger:    logger,
	}
}

// Run computes the fastest direct and one-switch routes of every ordered pair
// of the busiest stations and stores the top K of each pair.
// Failures of single pairs are logged and counted, not returned.
func (s *PrecomputeService) Run(ctx context.Context) (*PrecomputeSummary, error) {
	if !s.TryStart() {
		return nil, ErrPrecomputeRunning
	}
	return s.RunClaimed(ctx)
}

// TryStart claims the run slot. A successful claim must be followed by
// exactly one RunClaimed call, which releases it.
func (s *PrecomputeService) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// RunClaimed performs a run for a slot claimed with TryStart
func (s *PrecomputeService) RunClaimed(ctx context.Context) (*PrecomputeSummary, error) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary := &PrecomputeSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.WithField("run_id", summary.RunID)

	stations, err := s.timetable.BusiestStations(ctx, s.config.TopStations)
	if err != nil {
		return nil, timetableError(err)
	}
	summary.Stations = len(stations)
	log.WithField("stations", len(stations)).Info("Starting route precompute")

	for _, source := range stations {
		for _, destination := range stations {
			if source == destination {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("precompute cancelled: %w", err)
			}

			summary.Pairs++
			stored, err := s.computePair(ctx, source, destination)
			switch {
			case err != nil:
				summary.Failed++
				log.WithError(err).WithFields(logrus.Fields{
					"source":      source,
					"destination": destination,
				}).Warn("Failed to precompute pair")
			case stored:
				summary.Stored++
			default:
				summary.Empty++
			}
		}
	}

	summary.DurationMs = time.Since(summary.StartedAt).Milliseconds()
	log.WithFields(logrus.Fields{
		"pairs":       summary.Pairs,
		"stored":      summary.Stored,
		"empty":       summary.Empty,
		"failed":      summary.Failed,
		"duration_ms": summary.DurationMs,
	}).Info("Route precompute finished")

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	return summary, nil
}

func (s *PrecomputeService) computePair(ctx context.Context, source, destination string) (bool, error) {
	routes, err := s.engine.Search(ctx, &models.ParsedRouteQuery{
		Source:      source,
		Destination: destination,
		Date:        s.config.CanonicalDate,
		Criteria:    models.CriteriaFastest,
		Switches:    models.NewSwitchSet(0, 1),
	})
	if err != nil {
		return false, err
	}
	if len(routes) == 0 {
		return false, nil
	}
	if s.config.TopK > 0 && len(routes) > s.config.TopK {
		routes = routes[:s.config.TopK]
	}

	data, err := json.Marshal(routes)
	if err != nil {
		return false, fmt.Errorf("failed to encode routes: %w", err)
	}
	if err := s.cache.Put(ctx, PathID(source, destination), data); err != nil {
		return false, err
	}
	return true, nil
}

// Running reports whether a run is in progress
func (s *PrecomputeService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastSummary returns the summary of the last finished run, if any
func (s *PrecomputeService) LastSummary() *PrecomputeSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
