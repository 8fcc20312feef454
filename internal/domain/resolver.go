package domain

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultFuzzyThreshold is the minimum 0-100 name similarity for a fuzzy match.
const DefaultFuzzyThreshold = 70

// Directory is a place/postal lookup service.
type Directory interface {
	// QueryLocation returns place rows whose name matches name, ranked by the
	// directory. Fuzzy matches need a similarity of at least threshold (0-100).
	QueryLocation(ctx context.Context, name string, threshold int) ([]PlaceRecord, error)

	// QueryPostalCode returns the row for code, or false when there is none.
	QueryPostalCode(ctx context.Context, code string) (PlaceRecord, bool, error)
}

// Resolver turns a LocationQuery into a Coordinate.
type Resolver struct {
	dir       Directory
	threshold int
	logger    *slog.Logger
}

// NewResolver creates a Resolver over dir. A threshold outside 1-100 falls
// back to DefaultFuzzyThreshold.
func NewResolver(dir Directory, threshold int, logger *slog.Logger) *Resolver {
	if threshold < 1 || threshold > 100 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{
		dir:       dir,
		threshold: threshold,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve dispatches on the query variant.
func (r *Resolver) Resolve(ctx context.Context, q LocationQuery) (Coordinate, error) {
	switch q := q.(type) {
	case ByPlace:
		return r.ResolveByPlace(ctx, q.Name, q.Region)
	case ByPostalCode:
		return r.ResolveByPostalCode(ctx, q.Code)
	case nil:
		return Coordinate{}, invalidInputf("no location given")
	default:
		return Coordinate{}, invalidInputf("unsupported location query %T", q)
	}
}

// ResolveByPlace finds name within region. A two-letter region matches the
// state code, anything longer the state name; both case-insensitively. The
// first candidate in directory order wins.
func (r *Resolver) ResolveByPlace(ctx context.Context, name, region string) (Coordinate, error) {
	name = r.normalizeName(name)
	region = strings.TrimSpace(region)
	if name == "" {
		return Coordinate{}, invalidInputf("place name is empty")
	}
	if region == "" {
		return Coordinate{}, invalidInputf("region is empty")
	}

	rows, err := r.dir.QueryLocation(ctx, name, r.threshold)
	if err != nil {
		return Coordinate{}, ProviderError(err, "query place directory")
	}

	matchRegion := regionMatcher(region, r.normalizeName(region))
	for _, row := range rows {
		if !matchRegion(row) {
			continue
		}
		coord, err := NewCoordinate(row.Lat, row.Lon)
		if err != nil {
			r.logger.Warn("skipping directory row with bad coordinates",
				"place", row.PlaceName, "postal_code", row.PostalCode, "error", err)
			continue
		}
		return coord, nil
	}

	r.logger.Info("place not found", "place", name, "region", region, "candidates", len(rows))
	return Coordinate{}, &NotFoundError{Name: name, Region: region}
}

// ResolveByPostalCode looks up a 5-digit ZIP code. Malformed codes fail
// before the directory is touched.
func (r *Resolver) ResolveByPostalCode(ctx context.Context, code string) (Coordinate, error) {
	if !isPostalCode(code) {
		return Coordinate{}, invalidInputf("postal code %q must be exactly 5 digits", code)
	}

	row, ok, err := r.dir.QueryPostalCode(ctx, code)
	if err != nil {
		return Coordinate{}, ProviderError(err, "query postal directory")
	}
	if !ok {
		r.logger.Info("postal code not found", "postal_code", code)
		return Coordinate{}, &NotFoundError{PostalCode: code}
	}

	coord, err := NewCoordinate(row.Lat, row.Lon)
	if err != nil {
		r.logger.Info("postal code has no usable coordinates", "postal_code", code, "error", err)
		return Coordinate{}, &NotFoundError{PostalCode: code}
	}
	return coord, nil
}

// normalizeName trims and title-cases s. Casers keep state, so each call gets
// its own.
func (r *Resolver) normalizeName(s string) string {
	return cases.Title(language.AmericanEnglish).String(strings.TrimSpace(s))
}

func regionMatcher(raw, titled string) func(PlaceRecord) bool {
	if len(raw) == 2 {
		return func(row PlaceRecord) bool { return strings.EqualFold(row.StateCode, raw) }
	}
	return func(row PlaceRecord) bool { return strings.EqualFold(strings.TrimSpace(row.StateName), titled) }
}

func isPostalCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
