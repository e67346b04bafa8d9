package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/railconnect/route-finder/pkg/railtime"
)

// RouteType discriminates the itinerary variants in JSON
type RouteType string

const (
	RouteDirect      RouteType = "direct"
	RouteConnecting  RouteType = "connecting"
	RouteConnecting2 RouteType = "connecting2"
)

// Route is an itinerary returned by a route search.
// Implemented by DirectRoute, ConnectingRoute and TwoSwitchRoute.
type Route interface {
	Type() RouteType
	Switches() int
	TotalDurationMins() int
	// TrainNumbers lists the train of every leg in travel order
	TrainNumbers() []string
}

// Timestamp is an absolute time serialized as "YYYY-MM-DD HH:MM:SS"
type Timestamp time.Time

// Time returns the underlying time value
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// String formats the timestamp in railtime.TimestampLayout
func (t Timestamp) String() string {
	return railtime.FormatTimestamp(time.Time(t))
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := railtime.ParseTimestamp(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp(parsed)
	return nil
}

// Leg is one train segment of a connecting itinerary
type Leg struct {
	TrainNumber string    `json:"train_number"`
	TrainName   string    `json:"train_name"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Departure   Timestamp `json:"departure"`
	Arrival     Timestamp `json:"arrival"`
}

// DirectRoute is a single train running from source to destination
type DirectRoute struct {
	TrainNumber  string    `json:"train_number"`
	TrainName    string    `json:"train_name"`
	Departure    Timestamp `json:"departure"`
	Arrival      Timestamp `json:"arrival"`
	DurationMins int       `json:"duration_mins"`
}

func (r DirectRoute) Type() RouteType        { return RouteDirect }
func (r DirectRoute) Switches() int          { return 0 }
func (r DirectRoute) TotalDurationMins() int { return r.DurationMins }
func (r DirectRoute) TrainNumbers() []string { return []string{r.TrainNumber} }

// MarshalJSON adds the type and switches discriminators
func (r DirectRoute) MarshalJSON() ([]byte, error) {
	type Alias DirectRoute
	return json.Marshal(&struct {
		Type RouteType `json:"type"`
		*Alias
		Switches int `json:"switches"`
	}{
		Type:     RouteDirect,
		Alias:    (*Alias)(&r),
		Switches: 0,
	})
}

// ConnectingRoute is a two-train itinerary with one transfer
type ConnectingRoute struct {
	Leg1                Leg    `json:"leg1"`
	LayoverMins         int    `json:"layover_mins"`
	TransferStation     string `json:"transfer_station"`
	TransferStationName string `json:"transfer_station_name"`
	Leg2                Leg    `json:"leg2"`
	TotalDuration       int    `json:"total_duration_mins"`
}

func (r ConnectingRoute) Type() RouteType        { return RouteConnecting }
func (r ConnectingRoute) Switches() int          { return 1 }
func (r ConnectingRoute) TotalDurationMins() int { return r.TotalDuration }
func (r ConnectingRoute) TrainNumbers() []string {
	return []string{r.Leg1.TrainNumber, r.Leg2.TrainNumber}
}

// MarshalJSON adds the type and switches discriminators
func (r ConnectingRoute) MarshalJSON() ([]byte, error) {
	type Alias ConnectingRoute
	return json.Marshal(&struct {
		Type RouteType `json:"type"`
		*Alias
		Switches int `json:"switches"`
	}{
		Type:     RouteConnecting,
		Alias:    (*Alias)(&r),
		Switches: 1,
	})
}

// TwoSwitchRoute is a three-train itinerary with two transfers
type TwoSwitchRoute struct {
	Leg1                 Leg    `json:"leg1"`
	LayoverMins          int    `json:"layover_mins"`
	TransferStation      string `json:"transfer_station"`
	TransferStationName  string `json:"transfer_station_name"`
	Leg2                 Leg    `json:"leg2"`
	LayoverMins2         int    `json:"layover_mins2"`
	TransferStation2     string `json:"transfer_station2"`
	TransferStationName2 string `json:"transfer_station_name2"`
	Leg3                 Leg    `json:"leg3"`
	TotalDuration        int    `json:"total_duration_mins"`
}

func (r TwoSwitchRoute) Type() RouteType        { return RouteConnecting2 }
func (r TwoSwitchRoute) Switches() int          { return 2 }
func (r TwoSwitchRoute) TotalDurationMins() int { return r.TotalDuration }
func (r TwoSwitchRoute) TrainNumbers() []string {
	return []string{r.Leg1.TrainNumber, r.Leg2.TrainNumber, r.Leg3.TrainNumber}
}

// MarshalJSON adds the type and switches discriminators
func (r TwoSwitchRoute) MarshalJSON() ([]byte, error) {
	type Alias TwoSwitchRoute
	return json.Marshal(&struct {
		Type RouteType `json:"type"`
		*Alias
		Switches int `json:"switches"`
	}{
		Type:     RouteConnecting2,
		Alias:    (*Alias)(&r),
		Switches: 2,
	})
}

// DecodeRoutes decodes a JSON array of routes using the "type" field
func DecodeRoutes(data []byte) ([]Route, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode routes: %w", err)
	}

	routes := make([]Route, 0, len(raw))
	for i, item := range raw {
		var head struct {
			Type RouteType `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("failed to decode route %d: %w", i, err)
		}

		var (
			route Route
			err   error
		)
		switch head.Type {
		case RouteDirect:
			var r DirectRoute
			err = json.Unmarshal(item, &r)
			route = r
		case RouteConnecting:
			var r ConnectingRoute
			err = json.Unmarshal(item, &r)
			route = r
		case RouteConnecting2:
			var r TwoSwitchRoute
			err = json.Unmarshal(item, &r)
			route = r
		default:
			return nil, fmt.Errorf("route %d has unknown type %q", i, head.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode route %d: %w", i, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}
