package services

import (
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/railconnect/route-finder/internal/models"
	"github.com/railconnect/route-finder/pkg/railtime"
)

// RouteMemo is a bounded LRU of search results keyed by resolved query.
// A zero size disables memoization.
type RouteMemo struct {
	cache gcache.Cache
}

// NewRouteMemo creates a memo holding at most size results.
// A positive ttl expires entries after that duration.
func NewRouteMemo(size int, ttl time.Duration) *RouteMemo {
	if size <= 0 {
		return &RouteMemo{}
	}

	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &RouteMemo{cache: builder.Build()}
}

// Get returns the memoized routes of a query
func (m *RouteMemo) Get(q *models.ParsedRouteQuery) ([]models.Route, bool) {
	if m.cache == nil {
		return nil, false
	}
	value, err := m.cache.Get(memoKey(q))
	if err != nil {
		return nil, false
	}
	routes, ok := value.([]models.Route)
	return routes, ok
}

// Set memoizes the routes of a query
func (m *RouteMemo) Set(q *models.ParsedRouteQuery, routes []models.Route) {
	if m.cache == nil {
		return
	}
	// Set only fails on a nil key
	_ = m.cache.Set(memoKey(q), routes)
}

// Len returns the number of memoized queries
func (m *RouteMemo) Len() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len(true)
}

func memoKey(q *models.ParsedRouteQuery) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		q.Source, q.Destination, q.Date.Format(railtime.DateLayout), q.Criteria, q.Switches)
}
