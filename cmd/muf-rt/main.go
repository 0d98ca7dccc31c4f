// muf-rt - real-time MUF map renderer
//
// Fetches the ionosonde station feed, interpolates a global MUF field,
// blends it over a base map and publishes an RGB565 bitmap plus a zlib copy.
// Optionally archives the observations to Parquet and records the run in
// ClickHouse.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/muf-rt ./cmd/muf-rt

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KI7MT/muf-rt/internal/archive"
	"github.com/KI7MT/muf-rt/internal/config"
	"github.com/KI7MT/muf-rt/internal/metrics"
	"github.com/KI7MT/muf-rt/internal/pipeline"
	"github.com/KI7MT/muf-rt/internal/station"
	"github.com/KI7MT/muf-rt/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	cfg := config.DefaultConfig()

	flag.IntVar(&cfg.Width, "width", 0, "Output width in pixels (required)")
	flag.IntVar(&cfg.Height, "height", 0, "Output height in pixels (required)")
	flag.IntVar(&cfg.GridWidth, "grid-w", cfg.GridWidth, "Interpolation grid width")
	flag.IntVar(&cfg.GridHeight, "grid-h", cfg.GridHeight, "Interpolation grid height")
	flag.StringVar(&cfg.BasePath, "base", cfg.BasePath, "Base map image (bmp, png, jpeg, tiff, webp; .z or .gz compressed)")
	flag.StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "Output directory")
	flag.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Overlay opacity 0..1")
	flag.IntVar(&cfg.K, "k", cfg.K, "Nearest stations per cell")
	flag.Float64Var(&cfg.Power, "p", cfg.Power, "Inverse distance power")
	flag.Float64Var(&cfg.InfluenceKm, "influence-km", cfg.InfluenceKm, "Station influence radius in km")
	flag.BoolVar(&cfg.UseSolar, "use-sza", cfg.UseSolar, "Weight stations by solar zenith angle")
	flag.StringVar(&cfg.URL, "url", cfg.URL, "Station feed URL")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Feed request timeout")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Interpolation workers (0 = all CPUs)")
	flag.StringVar(&cfg.Product, "product", cfg.Product, "Product tag in the output file name")
	flag.StringVar(&cfg.ReplayPath, "replay", cfg.ReplayPath, "Render from a Parquet snapshot instead of the live feed")
	flag.StringVar(&cfg.ArchiveDir, "archive-dir", cfg.ArchiveDir, "Write a Parquet snapshot of each run here")
	flag.StringVar(&cfg.ClickHouseHost, "ch-host", cfg.ClickHouseHost, "ClickHouse address (empty disables)")
	flag.StringVar(&cfg.ClickHouseDatabase, "ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	flag.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "node_exporter textfile to write (*.prom)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	at := flag.String("at", "", "Evaluation time, RFC3339 (default now)")
	chInit := flag.Bool("ch-init", false, "Create the ClickHouse database and tables before writing")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "muf-rt v%s - Real-time MUF Map Renderer\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s -width W -height H -base FILE -outdir DIR [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Writes map-D-<W>x<H>-<product>.bmp and its .z copy to -outdir.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("muf-rt v%s\n", Version)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	var opts []pipeline.Option
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("Invalid -at %q: %v", *at, err)
		}
		opts = append(opts, pipeline.WithEvalTime(t.UTC()))
	}

	logger := cfg.NewLogger()

	log.Println("=========================================================")
	log.Printf("MUF-RT v%s", Version)
	log.Println("=========================================================")
	log.Printf("Output:    %s/%s", cfg.OutDir, cfg.FileName())
	log.Printf("Grid:      %dx%d  k=%d p=%.2f radius=%.0f km solar=%v",
		cfg.GridWidth, cfg.GridHeight, cfg.K, cfg.Power, cfg.InfluenceKm, cfg.UseSolar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	var src pipeline.Source
	if cfg.ReplayPath != "" {
		log.Printf("Source:    replay %s", cfg.ReplayPath)
		src = archive.Replay{Path: cfg.ReplayPath}
		if *at == "" {
			opts = append(opts, pipeline.WithEvalAtNewest())
		}
	} else {
		log.Printf("Source:    %s", cfg.URL)
		src = station.NewFetcher(cfg.URL, cfg.Timeout, logger)
	}

	if cfg.MetricsFile != "" {
		opts = append(opts, pipeline.WithMetrics(metrics.New()))
	}

	if cfg.ClickHouseEnabled() {
		addr := cfg.ClickHouseAddr()
		log.Printf("ClickHouse: %s/%s", addr, cfg.ClickHouseDatabase)
		runs := store.RunWriter{
			Addr:     addr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}
		if *chInit {
			if err := runs.EnsureSchema(ctx); err != nil {
				log.Fatalf("ClickHouse schema setup failed: %v", err)
			}
		}
		opts = append(opts,
			pipeline.WithObservationSink(store.ObservationWriter{
				Addr:     addr,
				Database: cfg.ClickHouseDatabase,
				Username: cfg.ClickHouseUser,
				Password: cfg.ClickHousePassword,
			}),
			pipeline.WithRunSink(runs))
	}

	res, err := pipeline.New(cfg, src, logger, opts...).Run(ctx)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Println()
	log.Println("=========================================================")
	log.Println("Run Summary")
	log.Println("=========================================================")
	log.Printf("Evaluated:  %s", res.EvalTime.UTC().Format(time.RFC3339))
	log.Printf("Records:    %d (accepted %d, invalid %d, stale %d)",
		res.Stats.Records, res.Stats.Accepted, res.Stats.DroppedInvalid, res.Stats.DroppedStale)
	if res.Field.Empty {
		log.Printf("Field:      empty, base map only")
	} else {
		log.Printf("Field:      min %.1f / mean %.1f / max %.1f MHz, residual %.2f MHz",
			res.Summary.Min, res.Summary.Mean, res.Summary.Max, res.Residual)
	}
	if cfg.UseSolar {
		log.Printf("Subsolar:   %.2f, %.2f", res.SubsolarLat, res.SubsolarLon)
	}
	for _, c := range res.Coverage {
		log.Printf("  %-4s open %5.1f%%", c.Band.Name, 100*c.Fraction)
	}
	log.Printf("Wrote:      %s", res.Paths.BMP)
	log.Printf("Wrote:      %s", res.Paths.Z)
	if res.Snapshot != "" {
		log.Printf("Archived:   %s", res.Snapshot)
	}
	for _, w := range res.Warnings {
		log.Printf("Warning:    %v", w)
	}
	log.Printf("Elapsed:    %v", res.Elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
