package geonames

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/couchcryptid/heat-forecast/internal/domain"

	_ "modernc.org/sqlite"
)

// DefaultDSN keeps the directory in memory for the life of the process.
const DefaultDSN = "file::memory:"

// maxMatches caps the rows a place query returns.
const maxMatches = 100

var schema = []string{
	`CREATE TABLE IF NOT EXISTS places (
		id          INTEGER PRIMARY KEY,
		postal_code TEXT NOT NULL,
		place_name  TEXT NOT NULL,
		place_key   TEXT NOT NULL,
		state_name  TEXT NOT NULL,
		state_code  TEXT NOT NULL,
		county      TEXT NOT NULL,
		latitude    REAL,
		longitude   REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_places_postal_code ON places(postal_code)`,
	`CREATE INDEX IF NOT EXISTS idx_places_place_key ON places(place_key)`,
}

// Store is a SQLite place directory. It implements domain.Directory.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the directory database at dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	// Each connection to an in-memory database is its own database.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply directory schema: %w", err)
		}
	}

	return &Store{db: db, logger: logger.With("component", "directory")}, nil
}

// Import replaces the directory contents with records in one transaction.
func (s *Store) Import(ctx context.Context, records []domain.PlaceRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM places`); err != nil {
		return fmt.Errorf("clear directory: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO places
		(postal_code, place_name, place_key, state_name, state_code, county, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare import: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.PostalCode, r.PlaceName, placeKey(r.PlaceName),
			r.StateName, r.StateCode, r.County, nullable(r.Lat), nullable(r.Lon)); err != nil {
			return fmt.Errorf("insert postal code %s: %w", r.PostalCode, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info("directory imported", "rows", len(records))
	return nil
}

// Count returns the number of directory rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count directory rows: %w", err)
	}
	return n, nil
}

// CheckReadiness fails until the directory holds at least one row.
func (s *Store) CheckReadiness(ctx context.Context) error {
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("place directory is empty")
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// QueryPostalCode aggregates every row for code: coordinates are averaged
// over rows that have them and the descriptive fields come from the first
// row. A code whose rows all lack coordinates returns NaN.
func (s *Store) QueryPostalCode(ctx context.Context, code string) (domain.PlaceRecord, bool, error) {
	const q = `SELECT p.postal_code, p.place_name, p.state_name, p.state_code, p.county, agg.lat, agg.lon
		FROM (
			SELECT MIN(id) AS first_id, AVG(latitude) AS lat, AVG(longitude) AS lon
			FROM places WHERE postal_code = ? GROUP BY postal_code
		) agg
		JOIN places p ON p.id = agg.first_id`

	var (
		rec      domain.PlaceRecord
		lat, lon sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, q, code).Scan(
		&rec.PostalCode, &rec.PlaceName, &rec.StateName, &rec.StateCode, &rec.County, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlaceRecord{}, false, nil
	}
	if err != nil {
		return domain.PlaceRecord{}, false, fmt.Errorf("query postal code %s: %w", code, err)
	}
	rec.Lat, rec.Lon = floatOrNaN(lat), floatOrNaN(lon)
	return rec, true, nil
}

// QueryLocation matches place names case-insensitively by substring. When
// nothing contains name, distinct names scoring at least threshold (0-100)
// are used instead, best score first. A threshold <= 0 disables the fuzzy
// pass. Rows keep file order within a name.
func (s *Store) QueryLocation(ctx context.Context, name string, threshold int) ([]domain.PlaceRecord, error) {
	needle := placeKey(name)
	if needle == "" {
		return nil, nil
	}

	rows, err := s.queryPlaces(ctx, `WHERE instr(place_key, ?) > 0 ORDER BY id LIMIT ?`, needle, maxMatches)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 || threshold <= 0 {
		return rows, nil
	}

	names, err := s.fuzzyNames(ctx, needle, threshold)
	if err != nil {
		return nil, err
	}

	var out []domain.PlaceRecord
	for _, n := range names {
		matched, err := s.queryPlaces(ctx, `WHERE place_key = ? ORDER BY id LIMIT ?`, n, maxMatches-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, matched...)
		if len(out) >= maxMatches {
			break
		}
	}
	s.logger.Debug("fuzzy place match", "name", name, "names", len(names), "rows", len(out))
	return out, nil
}

type scoredName struct {
	key     string
	score   int
	firstID int64
}

func (s *Store) fuzzyNames(ctx context.Context, needle string, threshold int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT place_key, MIN(id) FROM places GROUP BY place_key`)
	if err != nil {
		return nil, fmt.Errorf("list place names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scored []scoredName
	for rows.Next() {
		var sn scoredName
		if err := rows.Scan(&sn.key, &sn.firstID); err != nil {
			return nil, fmt.Errorf("scan place name: %w", err)
		}
		if sn.score = similarity(sn.key, needle); sn.score >= threshold {
			scored = append(scored, sn)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list place names: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].firstID < scored[j].firstID
	})

	names := make([]string, len(scored))
	for i, sn := range scored {
		names[i] = sn.key
	}
	return names, nil
}

func (s *Store) queryPlaces(ctx context.Context, where string, args ...any) ([]domain.PlaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT postal_code, place_name, state_name, state_code, county, latitude, longitude
		FROM places `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.PlaceRecord
	for rows.Next() {
		var (
			rec      domain.PlaceRecord
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&rec.PostalCode, &rec.PlaceName, &rec.StateName, &rec.StateCode, &rec.County, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		rec.Lat, rec.Lon = floatOrNaN(lat), floatOrNaN(lon)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	return out, nil
}

func placeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
