package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/railconnect/route-finder/pkg/railtime"
	"github.com/railconnect/route-finder/pkg/validator"
)

// Ranking criteria
const (
	CriteriaFastest        = "fastest"
	CriteriaFewestSwitches = "fewest_switches"
)

// DefaultSwitches is used when the caller does not pass a switches value
const DefaultSwitches = "0,1"

// RouteQuery represents a passenger's route search
type RouteQuery struct {
	Source      string `json:"source" form:"source" validate:"stationtext"`           // Station code, name or city (e.g., "NDLS")
	Destination string `json:"destination" form:"destination" validate:"stationtext"` // Station code, name or city (e.g., "Mumbai")
	Date        string `json:"date" form:"date" validate:"required,datetime=2006-01-02"`
	Criteria    string `json:"criteria" form:"criteria" validate:"criteria"` // "fastest" or "fewest_switches"
	Switches    string `json:"switches" form:"switches" validate:"switches"` // e.g. "0,1" or "all"
}

// SwitchSet is the set of allowed switch counts of a query
type SwitchSet [3]bool

// Has reports whether n switches are allowed
func (s SwitchSet) Has(n int) bool {
	return n >= 0 && n < len(s) && s[n]
}

// String renders the set as a sorted comma-separated list
func (s SwitchSet) String() string {
	parts := make([]string, 0, len(s))
	for n, ok := range s {
		if ok {
			parts = append(parts, fmt.Sprint(n))
		}
	}
	return strings.Join(parts, ",")
}

// NewSwitchSet builds a SwitchSet from switch counts
func NewSwitchSet(counts ...int) SwitchSet {
	var s SwitchSet
	for _, n := range counts {
		if n >= 0 && n < len(s) {
			s[n] = true
		}
	}
	return s
}

// ParsedRouteQuery is a validated query ready for the search engine
type ParsedRouteQuery struct {
	Source      string
	Destination string
	Date        time.Time
	Criteria    string
	Switches    SwitchSet
}

// ApplyDefaults fills criteria and switches when they were omitted
func (q *RouteQuery) ApplyDefaults() {
	if strings.TrimSpace(q.Criteria) == "" {
		q.Criteria = CriteriaFastest
	}
	if strings.TrimSpace(q.Switches) == "" {
		q.Switches = DefaultSwitches
	}
}

// Validate validates the query and returns its parsed form
func (q *RouteQuery) Validate() (*ParsedRouteQuery, error) {
	q.ApplyDefaults()
	q.Criteria = strings.TrimSpace(q.Criteria)

	if err := validator.Struct(q); err != nil {
		return nil, ErrInvalidInput(validator.ValidationMessage(err))
	}

	date, err := railtime.ParseDate(q.Date)
	if err != nil {
		return nil, ErrInvalidInput(err.Error())
	}
	counts, err := validator.ParseSwitches(q.Switches)
	if err != nil {
		return nil, ErrInvalidInput(err.Error())
	}

	return &ParsedRouteQuery{
		Source:      validator.SanitizeStation(q.Source),
		Destination: validator.SanitizeStation(q.Destination),
		Date:        date,
		Criteria:    q.Criteria,
		Switches:    NewSwitchSet(counts...),
	}, nil
}

// RouteSearchResponse is returned by the routes endpoint
type RouteSearchResponse struct {
	Status       string  `json:"status"`
	Routes       []Route `json:"routes"`
	Count        int     `json:"count"`
	Source       string  `json:"source,omitempty"`      // Resolved source code
	Destination  string  `json:"destination,omitempty"` // Resolved destination code
	FromCache    bool    `json:"from_cache"`
	SearchTimeMs int64   `json:"search_time_ms"`
}

// ErrInvalidInput creates a validation error
func ErrInvalidInput(message string) error {
	return &ValidationError{Message: message}
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
