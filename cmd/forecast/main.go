// Command forecast prints the sub-hourly forecast for one US location.
//
//	forecast -zip 22314
//	forecast -city Vienna -state VA -heat
//
// Settings other than the location come from the same environment variables
// as the service. Exit status is 2 for invalid input, 3 when the location is
// unknown, and 4 when the forecast provider fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/adapter/geonames"
	"github.com/couchcryptid/heat-forecast/internal/adapter/openmeteo"
	"github.com/couchcryptid/heat-forecast/internal/config"
	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/couchcryptid/heat-forecast/internal/pipeline"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidInput = 2
	exitNotFound     = 3
	exitProvider     = 4
)

type options struct {
	query domain.LocationQuery
	heat  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat).With("command", "forecast")
	metrics := observability.NewMetrics()

	store, err := geonames.Build(ctx, geonames.Source{
		Path: cfg.GeoNamesPath,
		URL:  cfg.GeoNamesURL,
		DSN:  cfg.DirectoryDSN,
	}, logger)
	if err != nil {
		fmt.Fprintln(stderr, "place directory:", err)
		return exitFailure
	}
	defer func() { _ = store.Close() }()

	client := openmeteo.NewClient(openmeteo.Options{
		BaseURL:    cfg.OpenMeteoBaseURL,
		Timeout:    cfg.OpenMeteoTimeout,
		Retries:    retries(cfg.OpenMeteoRetries),
		Backoff:    cfg.OpenMeteoBackoff,
		MaxBackoff: cfg.OpenMeteoMaxBackoff,
	}, metrics, logger)
	p := pipeline.New(domain.NewResolver(store, cfg.FuzzyThreshold, logger), client, logger, metrics)

	out := p.Run(ctx, opts.query)
	if !out.OK() {
		fmt.Fprintf(stderr, "%s: %s\n", out.Kind, out.Message)
		return exitCode(out.Kind)
	}

	var heat []domain.HeatSample
	if opts.heat {
		heat, err = domain.EnrichHeatIndex(*out.Series)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitCode(domain.KindOf(err))
		}
	}
	if err := writeTable(stdout, *out.Series, heat); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	zip := fs.String("zip", "", "5-digit US ZIP code")
	city := fs.String("city", "", "place name, used with -state")
	state := fs.String("state", "", "state code (VA) or name (Virginia)")
	heat := fs.Bool("heat", false, "add heat index and danger level columns")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case *zip != "" && (*city != "" || *state != ""):
		return options{}, errors.New("use either -zip or -city and -state")
	case *zip != "":
		return options{query: domain.ByPostalCode{Code: *zip}, heat: *heat}, nil
	case *city != "" && *state != "":
		return options{query: domain.ByPlace{Name: *city, Region: *state}, heat: *heat}, nil
	default:
		return options{}, errors.New("either -zip or both -city and -state are required")
	}
}

func exitCode(kind domain.FailureKind) int {
	switch kind {
	case domain.KindNone:
		return exitOK
	case domain.KindInvalidInput:
		return exitInvalidInput
	case domain.KindLocationNotFound:
		return exitNotFound
	default:
		return exitProvider
	}
}

// writeTable prints one row per sample. heat, when non-empty, must be
// aligned with ts.Timestamps.
func writeTable(w io.Writer, ts domain.TimeSeries, heat []domain.HeatSample) error {
	if _, err := fmt.Fprintf(w, "# %s (%s)\n", ts.Coordinate, ts.Timezone); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	keys := domain.DefaultVariables.Keys()
	fmt.Fprint(tw, domain.KeyDate)
	for _, k := range keys {
		fmt.Fprintf(tw, "\t%s", k)
	}
	if len(heat) > 0 {
		fmt.Fprint(tw, "\theat_index\tlevel")
	}
	fmt.Fprintln(tw, "\t")

	for i, at := range ts.Timestamps {
		fmt.Fprint(tw, at.Format(time.DateTime))
		for _, k := range keys {
			fmt.Fprintf(tw, "\t%s", formatValue(ts.Series[k], i))
		}
		if len(heat) > 0 {
			fmt.Fprintf(tw, "\t%s\t%s", formatValue(domain.Samples{heat[i].HeatIndexF}, 0), heat[i].Level)
		}
		fmt.Fprintln(tw, "\t")
	}
	return tw.Flush()
}

// retries maps the configured count onto the client's convention, where
// zero means "use the default" and a negative value disables retries.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func formatValue(s domain.Samples, i int) string {
	if i >= len(s) || math.IsNaN(s[i]) {
		return "-"
	}
	return strconv.FormatFloat(s[i], 'f', 1, 64)
}
