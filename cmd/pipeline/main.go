package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/i5heu/GoProducerConsumer/internal/logging"
	"github.com/i5heu/GoProducerConsumer/internal/report"
	"github.com/i5heu/GoProducerConsumer/internal/spreadsheet"
	"github.com/i5heu/GoProducerConsumer/pkg/config"
	"github.com/i5heu/GoProducerConsumer/pkg/metrics"
	"github.com/i5heu/GoProducerConsumer/pkg/pipeline"
)

// Common pool sizes swept when no worker count is given.
var commonWorkers = []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}

type flags struct {
	configPath    string
	items         int
	workers       int
	producers     int
	mode          string
	queue         string
	iterations    int
	jsonExport    bool
	jsonFile      string
	markdownTable bool
	progress      bool
	trace         bool
	metricsFile   string
}

func parseFlags(args []string) (*flags, map[string]bool, error) {
	f := &flags{}
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML or JSON config file")
	fs.IntVar(&f.items, "items", 100, "Number of spreadsheets to produce and consume per run")
	fs.IntVar(&f.workers, "workers", 0, "Pool size; if 0, sweep common pool sizes up to runtime.NumCPU()")
	fs.IntVar(&f.producers, "producers", 1, "Producer workers in dedicated mode")
	fs.StringVar(&f.mode, "mode", "dedicated", "Worker mode: dedicated, interleaved or both")
	fs.StringVar(&f.queue, "queue", "cond", "Hand-off queue: cond or chan")
	fs.IntVar(&f.iterations, "iter", 1, "Number of iterations per pool setting")
	fs.BoolVar(&f.jsonExport, "json", false, "Append results as JSON to -jsonfile")
	fs.StringVar(&f.jsonFile, "jsonfile", "test-results.json", "Path to the JSON results file")
	fs.BoolVar(&f.markdownTable, "markdown-table", false, "Output markdown table from -jsonfile and exit")
	fs.BoolVar(&f.progress, "progress", false, "Display a progress bar with ETA")
	fs.BoolVar(&f.trace, "trace", false, "Log every generated and calculated spreadsheet")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write prometheus metrics to this file after the runs")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyFlags lets explicitly set flags win over the config file and environment.
// It returns the modes to run.
func applyFlags(cfg *config.Config, f *flags, set map[string]bool) ([]pipeline.Mode, error) {
	if set["items"] {
		cfg.Run.Items = f.items
	}
	if set["workers"] {
		cfg.Pool.Workers = f.workers
	}
	if set["producers"] {
		cfg.Pool.Producers = f.producers
	}
	if set["iter"] {
		cfg.Run.Iterations = f.iterations
	}
	if set["trace"] {
		cfg.Run.Trace = f.trace
	}
	if cfg.Run.Trace {
		cfg.Log.Level = "debug"
	}
	if set["queue"] {
		kind, err := pipeline.ParseQueueKind(f.queue)
		if err != nil {
			return nil, err
		}
		cfg.Run.Queue = kind
	}

	modes := []pipeline.Mode{cfg.Pool.Mode}
	if set["mode"] {
		if strings.EqualFold(f.mode, "both") {
			modes = []pipeline.Mode{pipeline.ModeDedicated, pipeline.ModeInterleaved}
		} else {
			m, err := pipeline.ParseMode(f.mode)
			if err != nil {
				return nil, err
			}
			cfg.Pool.Mode = m
			modes = []pipeline.Mode{m}
		}
	}
	return modes, cfg.Validate()
}

// workerSettings returns the pool sizes to run: the configured one, or every
// common size up to numCPU.
func workerSettings(workers, numCPU int) []int {
	if workers > 0 {
		return []int{workers}
	}
	var out []int
	for _, v := range commonWorkers {
		if v <= numCPU {
			out = append(out, v)
		}
	}
	return out
}

// runSpreadsheets pushes cfg.Run.Items spreadsheets through one pipeline run.
func runSpreadsheets(ctx context.Context, cfg *config.Config, pool pipeline.Pool, logger *zap.Logger, m *metrics.Metrics) (pipeline.Result, error) {
	seed := uint64(cfg.Run.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen := spreadsheet.NewGenerator(seed)

	produce := func(context.Context) (spreadsheet.Sheet, error) {
		sheet := gen.Next()
		logging.Trace(logger, "generating spreadsheet #%d\n%s", sheet.ID, sheet.Format())
		return sheet, nil
	}
	consume := func(_ context.Context, sheet spreadsheet.Sheet) error {
		calc := spreadsheet.Calculate(sheet)
		logging.Trace(logger, "calculating spreadsheet #%d\n%s", sheet.ID, calc.Format())
		return nil
	}

	p := pipeline.New(produce, consume,
		pipeline.WithPool(pool),
		pipeline.WithQueue(cfg.Run.Queue),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	)
	return p.Run(ctx, cfg.Run.Items)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, set, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if f.markdownTable {
		sessions, err := report.LoadSessions(f.jsonFile)
		if err == nil {
			err = report.WriteMarkdown(os.Stdout, sessions)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		return 1
	}
	modes, err := applyFlags(cfg, f, set)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	workers := workerSettings(cfg.Pool.Workers, runtime.NumCPU())
	totalRuns := len(workers) * len(modes) * cfg.Run.Iterations

	var bar *progressbar.ProgressBar
	if f.progress {
		bar = progressbar.NewOptions(totalRuns,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Progress"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	session := report.Session{SystemInfo: report.GatherSystemInfo()}
	failed := 0
	start := time.Now()

runs:
	for _, n := range workers {
		fmt.Printf("\n=============================\n")
		fmt.Printf("workers = %d\n", n)
		fmt.Printf("=============================\n")

		for _, mode := range modes {
			pool := cfg.Pool
			pool.Workers = n
			pool.Mode = mode
			for iteration := 1; iteration <= cfg.Run.Iterations; iteration++ {
				runtime.GC()
				res, err := runSpreadsheets(ctx, cfg, pool, logger, m)
				if bar != nil {
					_ = bar.Clear()
				}
				r := report.NewRunResult(res, cfg.Run.Queue, cfg.Run.Items, err)
				session.Runs = append(session.Runs, r)

				if err != nil {
					failed++
					logger.Error("run failed",
						zap.Stringer("run_id", res.RunID),
						zap.Int("workers", n),
						zap.Stringer("mode", mode),
						zap.Error(err),
					)
				}
				fmt.Printf("    %s, workers=%d, producers=%d (iteration %d/%d) => produced=%d, consumed=%d, throughput=%.0f items/s, took=%v\n",
					r.Mode, r.Workers, r.Producers, iteration, cfg.Run.Iterations,
					r.Produced, r.Consumed, r.Throughput, res.Elapsed)
				if bar != nil {
					_ = bar.Add(1)
				}
				if ctx.Err() != nil {
					break runs
				}
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	session.SessionTime = time.Now().Format(time.RFC3339)
	fmt.Printf("\nTIME: %v\n", time.Since(start))

	if f.jsonExport {
		if err := report.AppendSessions(f.jsonFile, session); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			return 1
		}
		fmt.Printf("Wrote results to %s\n", f.jsonFile)
	}
	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing metrics file:", err)
			return 1
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d runs failed\n", failed, len(session.Runs))
		return 1
	}
	return 0
}
