package services

import (
	"context"
	"fmt"
	"time"

	"github.com/railconnect/route-finder/internal/models"
	"github.com/railconnect/route-finder/pkg/cachetree"
	"github.com/sirupsen/logrus"
)

// StationResolver maps free-text input to station codes
type StationResolver interface {
	ResolveStationCode(ctx context.Context, text string) (string, bool, error)
	ListStations(ctx context.Context, skip, limit int) ([]models.Station, error)
}

// RouteCacheStore holds precomputed route lists keyed by PathID
type RouteCacheStore interface {
	Get(ctx context.Context, pathID string) ([]byte, bool, error)
	Put(ctx context.Context, pathID string, routes []byte) error
}

// RouteSearchConfig tunes the cache and timetable paths of a search
type RouteSearchConfig struct {
	CacheEnabled     bool
	CanonicalDate    time.Time // Date the cached timestamps are anchored to
	CacheTimeout     time.Duration
	TimetableTimeout time.Duration
}

// RouteSearchService answers route queries from the precomputed cache
// and falls back to a live search of the timetable
type RouteSearchService struct {
	engine   *RouteEngine
	resolver StationResolver
	cache    RouteCacheStore
	memo     *RouteMemo
	config   RouteSearchConfig
	logger   *logrus.Logger
}

// NewRouteSearchService creates a new route search service.
// cache may be nil, in which case every search is live.
func NewRouteSearchService(
	engine *RouteEngine,
	resolver StationResolver,
	cache RouteCacheStore,
	memo *RouteMemo,
	config RouteSearchConfig,
	logger *logrus.Logger,
) *RouteSearchService {
	if memo == nil {
		memo = NewRouteMemo(0, 0)
	}
	return &RouteSearchService{
		engine:   engine,
		resolver: resolver,
		cache:    cache,
		memo:     memo,
		config:   config,
		logger:   logger,
	}
}

// PathID is the cache key of an ordered station pair
func PathID(source, destination string) string {
	return source + "-" + destination
}

// FindRoutes validates and resolves the query, then returns the ranked routes
func (s *RouteSearchService) FindRoutes(ctx context.Context, query *models.RouteQuery) (*models.RouteSearchResponse, error) {
	startTime := time.Now()

	// Step 1: Validate request
	parsed, err := query.Validate()
	if err != nil {
		return nil, err
	}

	response := &models.RouteSearchResponse{
		Status: "success",
		Routes: []models.Route{},
	}

	// Step 2: Resolve stations. An unknown station yields no routes.
	source, found, err := s.resolver.ResolveStationCode(ctx, parsed.Source)
	if err != nil {
		s.logger.WithError(err).Error("Error resolving source station")
		return nil, fmt.Errorf("error resolving source station: %w", err)
	}
	if !found {
		s.logUnresolved("source", parsed.Source)
		return s.finish(response, startTime), nil
	}

	destination, found, err := s.resolver.ResolveStationCode(ctx, parsed.Destination)
	if err != nil {
		s.logger.WithError(err).Error("Error resolving destination station")
		return nil, fmt.Errorf("error resolving destination station: %w", err)
	}
	if !found {
		s.logUnresolved("destination", parsed.Destination)
		return s.finish(response, startTime), nil
	}

	parsed.Source = source
	parsed.Destination = destination
	response.Source = source
	response.Destination = destination

	if source == destination {
		return s.finish(response, startTime), nil
	}

	// Step 3: Memo
	if routes, ok := s.memo.Get(parsed); ok {
		response.Routes = routes
		return s.finish(response, startTime), nil
	}

	// Step 4: Precomputed cache, rebased to the requested date
	if routes, ok := s.fromCache(ctx, parsed); ok {
		response.Routes = routes
		response.FromCache = true
		s.memo.Set(parsed, routes)
		return s.finish(response, startTime), nil
	}

	// Step 5: Live search
	searchCtx, cancel := context.WithTimeout(ctx, s.config.TimetableTimeout)
	defer cancel()

	routes, err := s.engine.Search(searchCtx, parsed)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"source":      source,
			"destination": destination,
		}).Error("Live route search failed")
		return nil, fmt.Errorf("error searching routes: %w", err)
	}

	s.memo.Set(parsed, routes)
	response.Routes = routes
	return s.finish(response, startTime), nil
}

// fromCache returns the cached routes of a pair rebased to the query date.
// Any cache failure is logged and reported as a miss.
func (s *RouteSearchService) fromCache(ctx context.Context, q *models.ParsedRouteQuery) ([]models.Route, bool) {
	if !s.config.CacheEnabled || s.cache == nil {
		return nil, false
	}

	pathID := PathID(q.Source, q.Destination)
	log := s.logger.WithField("path_id", pathID)

	cacheCtx, cancel := context.WithTimeout(ctx, s.config.CacheTimeout)
	defer cancel()

	data, found, err := s.cache.Get(cacheCtx, pathID)
	if err != nil {
		log.WithError(err).Warn("Route cache unavailable, falling back to live search")
		return nil, false
	}
	if !found {
		return nil, false
	}

	tree, err := cachetree.Parse(data)
	if err != nil {
		log.WithError(err).Warn("Undecodable route cache entry, falling back to live search")
		return nil, false
	}
	rebased, err := cachetree.RebaseDate(tree, s.config.CanonicalDate, q.Date).MarshalJSON()
	if err != nil {
		log.WithError(err).Warn("Failed to encode rebased route cache entry")
		return nil, false
	}
	routes, err := models.DecodeRoutes(rebased)
	if err != nil {
		log.WithError(err).Warn("Undecodable route cache entry, falling back to live search")
		return nil, false
	}

	log.WithField("routes", len(routes)).Debug("Route cache hit")
	return routes, true
}

// ListStations returns a page of stations
func (s *RouteSearchService) ListStations(ctx context.Context, skip, limit int) ([]models.Station, error) {
	stations, err := s.resolver.ListStations(ctx, skip, limit)
	if err != nil {
		s.logger.WithError(err).Error("Error listing stations")
		return nil, fmt.Errorf("error listing stations: %w", err)
	}
	return stations, nil
}

func (s *RouteSearchService) finish(response *models.RouteSearchResponse, startTime time.Time) *models.RouteSearchResponse {
	response.Count = len(response.Routes)
	response.SearchTimeMs = time.Since(startTime).Milliseconds()

	s.logger.WithFields(logrus.Fields{
		"source":         response.Source,
		"destination":    response.Destination,
		"count":          response.Count,
		"from_cache":     response.FromCache,
		"search_time_ms": response.SearchTimeMs,
	}).Info("Route search completed")

	return response
}

func (s *RouteSearchService) logUnresolved(field, text string) {
	s.logger.WithFields(logrus.Fields{
		"field": field,
		"input": text,
	}).Info("Station not found")
}
