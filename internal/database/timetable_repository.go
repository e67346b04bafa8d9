package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/railconnect/route-finder/internal/models"
)

// inChunkSize bounds the number of bind variables of one IN (...) query
const inChunkSize = 500

// stopColumns selects a schedule row as a StopEvent. The ingestion side
// stores a missing time as the literal 'None'.
const stopColumns = `
	s.train_number,
	s.station_code,
	NULLIF(NULLIF(s.arrival_time, 'None'), '') AS arrival_time,
	NULLIF(NULLIF(s.departure_time, 'None'), '') AS departure_time,
	s.day_count,
	s.stop_number,
	COALESCE(s.distance, 0) AS distance`

// stopRow mirrors a schedule row before validation. Rows lacking a day
// count or stop number are dropped instead of failing the whole lookup.
type stopRow struct {
	TrainNumber   string        `db:"train_number"`
	StationCode   string        `db:"station_code"`
	ArrivalTime   *string       `db:"arrival_time"`
	DepartureTime *string       `db:"departure_time"`
	DayCount      sql.NullInt64 `db:"day_count"`
	StopNumber    sql.NullInt64 `db:"stop_number"`
	Distance      float64       `db:"distance"`
}

func (r stopRow) valid() bool {
	return r.DayCount.Valid && r.DayCount.Int64 >= 1 && r.StopNumber.Valid
}

func (r stopRow) toStopEvent() models.StopEvent {
	return models.StopEvent{
		TrainNumber:   r.TrainNumber,
		StationCode:   r.StationCode,
		ArrivalTime:   r.ArrivalTime,
		DepartureTime: r.DepartureTime,
		DayCount:      int(r.DayCount.Int64),
		StopNumber:    int(r.StopNumber.Int64),
		Distance:      r.Distance,
	}
}

// TimetableRepository reads stations, trains and stop events
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// StopsAt returns every stop event at a station, ordered by train and stop number
func (r *TimetableRepository) StopsAt(ctx context.Context, stationCode string) ([]models.StopEvent, error) {
	query := r.db.Rebind(`
		SELECT ` + stopColumns + `
		FROM schedules s
		WHERE s.station_code = ?
		ORDER BY s.train_number, s.stop_number
	`)

	stops, err := r.selectStops(ctx, query, stationCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get stops at %s: %w", stationCode, err)
	}
	return stops, nil
}

func (r *TimetableRepository) selectStops(ctx context.Context, query string, args ...interface{}) ([]models.StopEvent, error) {
	var rows []stopRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	stops := make([]models.StopEvent, 0, len(rows))
	for _, row := range rows {
		if !row.valid() {
			continue
		}
		stops = append(stops, row.toStopEvent())
	}
	return stops, nil
}

// StopsAtStations returns every stop event at any of the given stations
func (r *TimetableRepository) StopsAtStations(ctx context.Context, stationCodes []string) ([]models.StopEvent, error) {
	var all []models.StopEvent
	for _, chunk := range chunkStrings(stationCodes, inChunkSize) {
		query, args, err := sqlx.In(`
			SELECT `+stopColumns+`
			FROM schedules s
			WHERE s.station_code IN (?)
			ORDER BY s.train_number, s.stop_number
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build stations query: %w", err)
		}

		stops, err := r.selectStops(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to get stops at stations: %w", err)
		}
		all = append(all, stops...)
	}
	return all, nil
}

// TrainStops returns the full itinerary of each train, ordered by stop number
func (r *TimetableRepository) TrainStops(ctx context.Context, trainNumbers []string) (map[string][]models.StopEvent, error) {
	result := make(map[string][]models.StopEvent, len(trainNumbers))
	for _, chunk := range chunkStrings(trainNumbers, inChunkSize) {
		query, args, err := sqlx.In(`
			SELECT `+stopColumns+`
			FROM schedules s
			WHERE s.train_number IN (?)
			ORDER BY s.train_number, s.stop_number
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build train stops query: %w", err)
		}

		stops, err := r.selectStops(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to get train stops: %w", err)
		}
		for _, stop := range stops {
			result[stop.TrainNumber] = append(result[stop.TrainNumber], stop)
		}
	}
	return result, nil
}

// Trains returns trains keyed by number
func (r *TimetableRepository) Trains(ctx context.Context, trainNumbers []string) (map[string]models.Train, error) {
	result := make(map[string]models.Train, len(trainNumbers))
	for _, chunk := range chunkStrings(trainNumbers, inChunkSize) {
		query, args, err := sqlx.In(`
			SELECT train_number, train_name
			FROM trains
			WHERE train_number IN (?)
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build trains query: %w", err)
		}

		var trains []models.Train
		if err := r.db.SelectContext(ctx, &trains, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get trains: %w", err)
		}
		for _, train := range trains {
			result[train.Number] = train
		}
	}
	return result, nil
}

// Stations returns stations keyed by code
func (r *TimetableRepository) Stations(ctx context.Context, stationCodes []string) (map[string]models.Station, error) {
	result := make(map[string]models.Station, len(stationCodes))
	for _, chunk := range chunkStrings(stationCodes, inChunkSize) {
		query, args, err := sqlx.In(`
			SELECT code, name, city
			FROM stations
			WHERE code IN (?)
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build stations query: %w", err)
		}

		var stations []models.Station
		if err := r.db.SelectContext(ctx, &stations, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get stations: %w", err)
		}
		for _, station := range stations {
			result[station.Code] = station
		}
	}
	return result, nil
}

// BusiestStations returns the station codes with the most stop events
func (r *TimetableRepository) BusiestStations(ctx context.Context, limit int) ([]string, error) {
	query := r.db.Rebind(`
		SELECT station_code
		FROM schedules
		GROUP BY station_code
		ORDER BY COUNT(*) DESC, station_code
		LIMIT ?
	`)

	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get busiest stations: %w", err)
	}
	return codes, nil
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
