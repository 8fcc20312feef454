// Package geonames loads the GeoNames postal-code dump into a SQLite-backed
// place directory.
//
// The dump is tab separated, one postal code per line, no header:
//
//	country  postal  place  state  state_code  county  county_code  admin3  admin3_code  lat  lon  accuracy
//
// The same postal code can appear on several lines (one per place). Empty
// latitude or longitude load as NaN.
package geonames

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/go-resty/resty/v2"
)

// DefaultURL is the US postal-code dump.
const DefaultURL = "https://download.geonames.org/export/zip/US.zip"

// Column positions in the dump.
const (
	colCountry = iota
	colPostalCode
	colPlaceName
	colStateName
	colStateCode
	colCounty
	colCountyCode
	colAdmin3
	colAdmin3Code
	colLatitude
	colLongitude
	colAccuracy

	minColumns = colLongitude + 1
)

// EnsureFile downloads url to path unless path already exists.
func EnsureFile(ctx context.Context, url, path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return Download(ctx, url, path, logger)
}

// Download fetches url into dest, writing through a temp file so a failed
// transfer never leaves a partial dump behind.
func Download(ctx context.Context, url, dest string, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := dest + ".part"

	start := time.Now()
	resp, err := resty.New().
		SetTimeout(5*time.Minute).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(url)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}

	logger.Info("geonames dump downloaded", "url", url, "path", dest, "bytes", resp.Size(), "duration", time.Since(start))
	return nil
}

// LoadFile reads a dump from a .zip archive (first .txt entry other than the
// readme) or from a plain tab-separated file.
func LoadFile(path string) ([]domain.PlaceRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return loadZip(path)
	}

	//nolint:gosec // G304: path comes from configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func loadZip(path string) ([]domain.PlaceRecord, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		name := strings.ToLower(filepath.Base(f.Name))
		if !strings.HasSuffix(name, ".txt") || name == "readme.txt" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in archive: %w", f.Name, err)
		}
		records, err := Parse(rc)
		_ = rc.Close()
		return records, err
	}
	return nil, fmt.Errorf("archive %s has no data file", path)
}

// Parse reads dump lines from r. Lines with too few columns or no postal
// code are rejected with their line number.
func Parse(r io.Reader) ([]domain.PlaceRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var records []domain.PlaceRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(row) < minColumns {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, minColumns, len(row))
		}

		rec := domain.PlaceRecord{
			PostalCode: strings.TrimSpace(row[colPostalCode]),
			PlaceName:  strings.TrimSpace(row[colPlaceName]),
			StateName:  strings.TrimSpace(row[colStateName]),
			StateCode:  strings.TrimSpace(row[colStateCode]),
			County:     strings.TrimSpace(row[colCounty]),
			Lat:        parseCoord(row[colLatitude]),
			Lon:        parseCoord(row[colLongitude]),
		}
		if rec.PostalCode == "" {
			return nil, fmt.Errorf("line %d: empty postal code", line)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
