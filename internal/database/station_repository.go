package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/railconnect/route-finder/internal/models"
)

// StationRepository resolves free-text station input and lists stations
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository creates a new station repository
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

// ResolveStationCode finds the station matching the input, case-insensitive:
// an exact code wins over a name substring, which wins over a city substring.
func (r *StationRepository) ResolveStationCode(ctx context.Context, text string) (string, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	query := r.db.Rebind(`
		SELECT code
		FROM stations
		WHERE LOWER(code) = LOWER(?)
		   OR LOWER(name) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(city, '')) LIKE ? ESCAPE '\'
		ORDER BY
			CASE
				WHEN LOWER(code) = LOWER(?) THEN 0
				WHEN LOWER(name) LIKE ? ESCAPE '\' THEN 1
				ELSE 2
			END,
			code
		LIMIT 1
	`)

	var code string
	err := r.db.GetContext(ctx, &code, query, text, pattern, pattern, text, pattern)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown station - not an error
			return "", false, nil
		}
		return "", false, fmt.Errorf("error resolving station %q: %w", text, err)
	}
	return code, true, nil
}

// ListStations returns a page of stations ordered by code
func (r *StationRepository) ListStations(ctx context.Context, skip, limit int) ([]models.Station, error) {
	query := r.db.Rebind(`
		SELECT code, name, city
		FROM stations
		ORDER BY code
		LIMIT ? OFFSET ?
	`)

	stations := []models.Station{}
	if err := r.db.SelectContext(ctx, &stations, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
