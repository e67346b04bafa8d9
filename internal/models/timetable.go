package models

// Station represents a rail station
type Station struct {
	Code string  `json:"code" db:"code"`
	Name string  `json:"name" db:"name"`
	City *string `json:"city,omitempty" db:"city"`
}

// Train represents a scheduled train service
type Train struct {
	Number string `json:"train_number" db:"train_number"`
	Name   string `json:"train_name" db:"train_name"`
}

// StopEvent is one scheduled call of a train at a station.
// ArrivalTime is nil at the first stop, DepartureTime is nil at the last.
type StopEvent struct {
	TrainNumber   string  `json:"train_number" db:"train_number"`
	StationCode   string  `json:"station_code" db:"station_code"`
	ArrivalTime   *string `json:"arrival_time,omitempty" db:"arrival_time"`
	DepartureTime *string `json:"departure_time,omitempty" db:"departure_time"`
	DayCount      int     `json:"day_count" db:"day_count"`
	StopNumber    int     `json:"stop_number" db:"stop_number"`
	Distance      float64 `json:"distance" db:"distance"`
}

// HasArrival reports whether the stop carries an arrival time
func (s *StopEvent) HasArrival() bool {
	return s.ArrivalTime != nil && *s.ArrivalTime != ""
}

// HasDeparture reports whether the stop carries a departure time
func (s *StopEvent) HasDeparture() bool {
	return s.DepartureTime != nil && *s.DepartureTime != ""
}

// Arrival returns the arrival time or an empty string
func (s *StopEvent) Arrival() string {
	if s.ArrivalTime == nil {
		return ""
	}
	return *s.ArrivalTime
}

// Departure returns the departure time or an empty string
func (s *StopEvent) Departure() string {
	if s.DepartureTime == nil {
		return ""
	}
	return *s.DepartureTime
}
