package main

import (
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/i5heu/GoProducerConsumer/internal/report"
)

// samples maps queue kind -> mode -> pool size -> ns/item values.
type samples map[string]map[string]map[int][]float64

// workerStats summarises all runs of one mode at one pool size.
type workerStats struct {
	x       float64 // category position, including the per-series offset
	workers int
	low     float64 // 5th percentile
	median  float64
	high    float64 // 95th percentile
}

// statsPoints implements XYer and YErrorer so a series can be drawn as a line with error bars.
type statsPoints []workerStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].x, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	return s[i].median - s[i].low, s[i].high - s[i].median
}

// categoryTicks labels the categorical X axis with pool sizes.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

// collect groups successful runs by queue, mode and pool size.
func collect(sessions []report.Session) samples {
	out := make(samples)
	for _, session := range sessions {
		for _, r := range session.Runs {
			if r.Error != "" || r.Consumed == 0 {
				continue
			}
			dur, err := time.ParseDuration(r.ActualElapsed)
			if err != nil {
				continue
			}
			nsPerItem := float64(dur.Nanoseconds()) / float64(r.Consumed)

			byMode, ok := out[r.Queue]
			if !ok {
				byMode = make(map[string]map[int][]float64)
				out[r.Queue] = byMode
			}
			byWorkers, ok := byMode[r.Mode]
			if !ok {
				byWorkers = make(map[int][]float64)
				byMode[r.Mode] = byWorkers
			}
			byWorkers[r.Workers] = append(byWorkers[r.Workers], nsPerItem)
		}
	}
	return out
}

// buildStats returns one entry per pool size, ordered by pool size.
func buildStats(byWorkers map[int][]float64) []workerStats {
	out := make([]workerStats, 0, len(byWorkers))
	for workers, vals := range byWorkers {
		if len(vals) == 0 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out = append(out, workerStats{
			workers: workers,
			low:     stat.Quantile(0.05, stat.Empirical, sorted, nil),
			median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
			high:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].workers < out[b].workers })
	return out
}

func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Workers"
	p.Y.Label.Text = "Time per Item [log scale]"
	p.Y.Scale = plot.LogScale{}

	// Dark theme.
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white

	p.Y.Tick.Marker = plot.TickerFunc(logTicks)
	p.Add(plotter.NewGrid())
	return p
}

// logTicks spaces roughly 20 ticks evenly on a log scale.
func logTicks(min, max float64) []plot.Tick {
	const nTicks = 20.0
	if min <= 0 {
		min = 1
	}
	start, end := math.Log10(min), math.Log10(max)
	step := (end - start) / nTicks

	var ticks []plot.Tick
	for i := 0.0; i <= nTicks; i++ {
		y := math.Pow(10, start+i*step)
		ticks = append(ticks, plot.Tick{Value: y, Label: formatNs(y)})
	}
	return ticks
}

func drawQueue(queue string, byMode map[string]map[int][]float64, filename string) error {
	p := newPlot(fmt.Sprintf("Pipeline (p5 / median / p95) vs. Workers, %s queue", queue))

	workerSet := make(map[int]struct{})
	for _, byWorkers := range byMode {
		for w := range byWorkers {
			workerSet[w] = struct{}{}
		}
	}
	var workerValues []int
	for w := range workerSet {
		workerValues = append(workerValues, w)
	}
	sort.Ints(workerValues)

	position := make(map[int]float64)
	var ct categoryTicks
	for i, w := range workerValues {
		position[w] = float64(i)
		ct.positions = append(ct.positions, float64(i))
		ct.labels = append(ct.labels, strconv.Itoa(w))
	}
	p.X.Tick.Marker = ct

	var modes []string
	for mode := range byMode {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	colors := plotutil.SoftColors
	shapes := []draw.GlyphDrawer{draw.CircleGlyph{}, draw.SquareGlyph{}, draw.TriangleGlyph{}}

	// Slight offset so the modes do not hide each other's error bars.
	const offsetRange = 0.3
	offsetStep := offsetRange / float64(len(modes))
	startOffset := -offsetRange/2 + offsetStep/2

	for i, mode := range modes {
		stats := buildStats(byMode[mode])
		if len(stats) == 0 {
			continue
		}
		for j := range stats {
			stats[j].x = position[stats[j].workers] + startOffset + float64(i)*offsetStep
		}
		sp := statsPoints(stats)

		line, err := plotter.NewLine(sp)
		if err != nil {
			return fmt.Errorf("creating line for %s: %w", mode, err)
		}
		line.Color = colors[i%len(colors)]

		points, err := plotter.NewScatter(sp)
		if err != nil {
			return fmt.Errorf("creating scatter for %s: %w", mode, err)
		}
		points.GlyphStyle.Radius = vg.Points(5)
		points.Color = colors[i%len(colors)]
		points.Shape = shapes[i%len(shapes)]

		yErrBars, err := plotter.NewYErrorBars(sp)
		if err != nil {
			return fmt.Errorf("creating error bars for %s: %w", mode, err)
		}
		yErrBars.Color = colors[i%len(colors)]

		p.Add(line, points, yErrBars)
		p.Legend.Add(mode, line, points)
	}

	return p.Save(12*vg.Inch, 9*vg.Inch, filename)
}

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing run sessions")
	outputPrefix := flag.String("out", "pipeline_graph", "Output graph image filename prefix")
	flag.Parse()

	sessions, err := report.LoadSessions(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading sessions: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Fprintf(os.Stderr, "No sessions found in %s\n", *jsonFile)
		os.Exit(1)
	}

	for queue, byMode := range collect(sessions) {
		filename := fmt.Sprintf("%s_%s.png", *outputPrefix, queue)
		if err := drawQueue(queue, byMode, filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error drawing graph for %s queue: %v\n", queue, err)
			continue
		}
		fmt.Printf("Graph for %s queue saved to %s\n", queue, filename)
	}
}

// formatNs nicely formats a nanoseconds value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
