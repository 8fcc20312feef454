package geonames

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testdataTSV = "testdata/US.txt"
	testdataZip = "testdata/US.zip"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	records, err := LoadFile(testdataTSV)
	require.NoError(t, err)

	s, err := Open(ctx, DefaultDSN, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Import(ctx, records))
	return s
}

func postalCodes(rows []domain.PlaceRecord) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.PostalCode
	}
	return out
}

// --- loader ---

func TestLoadFile_TSV(t *testing.T) {
	records, err := LoadFile(testdataTSV)
	require.NoError(t, err)
	require.Len(t, records, 9)

	first := records[0]
	assert.Equal(t, domain.PlaceRecord{
		PostalCode: "22314",
		PlaceName:  "Alexandria",
		StateName:  "Virginia",
		StateCode:  "VA",
		County:     "City of Alexandria",
		Lat:        38.8048,
		Lon:        -77.0469,
	}, first)

	pago := records[6]
	assert.Equal(t, "96799", pago.PostalCode)
	assert.True(t, math.IsNaN(pago.Lat))
	assert.True(t, math.IsNaN(pago.Lon))
}

func TestLoadFile_ZipSkipsReadme(t *testing.T) {
	fromZip, err := LoadFile(testdataZip)
	require.NoError(t, err)
	require.Len(t, fromZip, 9)
	assert.Equal(t, "22314", fromZip[0].PostalCode)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"too few columns": "US\t22314\tAlexandria\n",
		"no postal code":  "US\t\tAlexandria\tVirginia\tVA\t\t\t\t\t38.8\t-77.0\t4\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestDownload(t *testing.T) {
	data, err := os.ReadFile(testdataZip)
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "geonames", "US.zip")
	require.NoError(t, EnsureFile(context.Background(), srv.URL+"/US.zip", dest, discardLogger()))

	records, err := LoadFile(dest)
	require.NoError(t, err)
	assert.Len(t, records, 9)

	require.NoError(t, EnsureFile(context.Background(), srv.URL+"/US.zip", dest, discardLogger()))
	assert.Equal(t, int32(1), hits.Load(), "existing dump is not downloaded again")
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "US.zip")
	err := Download(context.Background(), srv.URL+"/missing.zip", dest, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

// --- store ---

func TestStore_CountAndReadiness(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DefaultDSN, discardLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Error(t, s.CheckReadiness(ctx))

	records, err := LoadFile(testdataTSV)
	require.NoError(t, err)
	require.NoError(t, s.Import(ctx, records))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.NoError(t, s.CheckReadiness(ctx))

	require.NoError(t, s.Import(ctx, records[:2]))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "import replaces contents")
}

func TestStore_QueryPostalCode(t *testing.T) {
	s := openTestStore(t)

	rec, ok, err := s.QueryPostalCode(context.Background(), "22314")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alexandria", rec.PlaceName)
	assert.Equal(t, 38.8048, rec.Lat)
	assert.Equal(t, -77.0469, rec.Lon)
}

func TestStore_QueryPostalCode_AveragesDuplicates(t *testing.T) {
	s := openTestStore(t)

	rec, ok, err := s.QueryPostalCode(context.Background(), "20598")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Arlington", rec.PlaceName)
	assert.InDelta(t, 38.85, rec.Lat, 1e-9)
	assert.InDelta(t, -77.15, rec.Lon, 1e-9)
}

func TestStore_QueryPostalCode_MissingCoordinates(t *testing.T) {
	s := openTestStore(t)

	rec, ok, err := s.QueryPostalCode(context.Background(), "96799")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, math.IsNaN(rec.Lat))
	assert.True(t, math.IsNaN(rec.Lon))
}

func TestStore_QueryPostalCode_Unknown(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.QueryPostalCode(context.Background(), "99999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_QueryLocation(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		threshold int
		want      []string
	}{
		{"exact name", "Vienna", 70, []string{"22180", "22181", "21869"}},
		{"case insensitive substring", "VIEN", 70, []string{"22180", "22181", "21869"}},
		{"multi-word", "falls church", 70, []string{"20598"}},
		{"fuzzy fallback", "Viena", 70, []string{"22180", "22181", "21869"}},
		{"fuzzy disabled", "Viena", 0, nil},
		{"below threshold", "Vxxxxa", 70, nil},
		{"no match", "Nowhereville", 70, nil},
		{"blank", "   ", 70, nil},
	}

	s := openTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.QueryLocation(context.Background(), tt.query, tt.threshold)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, rows)
				return
			}
			assert.Equal(t, tt.want, postalCodes(rows))
		})
	}
}

func TestStore_QueryLocation_FuzzyRanksBestFirst(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DefaultDSN, discardLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Import(ctx, []domain.PlaceRecord{
		{PostalCode: "00001", PlaceName: "Springfiled", StateCode: "IL", Lat: 1, Lon: 1},
		{PostalCode: "00002", PlaceName: "Springfeld", StateCode: "IL", Lat: 2, Lon: 2},
		{PostalCode: "00003", PlaceName: "Springvale", StateCode: "ME", Lat: 3, Lon: 3},
	}))

	rows, err := s.QueryLocation(ctx, "Springfeild", 70)
	require.NoError(t, err)
	assert.Equal(t, []string{"00002", "00001"}, postalCodes(rows), "one edit ranks above two; four edits fall below threshold")
}

// --- resolver over the store ---

func TestResolverOverStore(t *testing.T) {
	r := domain.NewResolver(openTestStore(t), domain.DefaultFuzzyThreshold, discardLogger())
	ctx := context.Background()

	byCode, err := r.Resolve(ctx, domain.ByPlace{Name: "vienna", Region: "VA"})
	require.NoError(t, err)
	byName, err := r.Resolve(ctx, domain.ByPlace{Name: "Vienna", Region: "Virginia"})
	require.NoError(t, err)
	assert.Equal(t, byCode, byName)
	assert.Equal(t, domain.Coordinate{Lat: 38.8951, Lon: -77.2581}, byCode)

	md, err := r.Resolve(ctx, domain.ByPlace{Name: "Vienna", Region: "md"})
	require.NoError(t, err)
	assert.Equal(t, 38.4865, md.Lat)

	_, err = r.Resolve(ctx, domain.ByPostalCode{Code: "96799"})
	assert.Equal(t, domain.KindLocationNotFound, domain.KindOf(err))

	_, err = r.Resolve(ctx, domain.ByPlace{Name: "Nowhereville", Region: "ZZ"})
	assert.Equal(t, domain.KindLocationNotFound, domain.KindOf(err))

	zip, err := r.Resolve(ctx, domain.ByPostalCode{Code: "22314"})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(zip.Lat))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, similarity("vienna", "vienna"))
	assert.Equal(t, 83, similarity("vienna", "viena"))
	assert.Equal(t, 0, similarity("abc", "xyz"))
	assert.Equal(t, 100, similarity("", ""))
}
