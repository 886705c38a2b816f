package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoProducerConsumer/pkg/pipeline"
)

// RunResult holds the outcome of one pipeline run.
type RunResult struct {
	RunID         string  `json:"run_id"`
	Mode          string  `json:"mode"`
	Queue         string  `json:"queue"`
	Workers       int     `json:"workers"`
	Producers     int     `json:"producers"`
	Items         int     `json:"items"`
	Produced      int64   `json:"produced"`
	Consumed      int64   `json:"consumed"`
	ActualElapsed string  `json:"actual_elapsed"`      // measured time
	Throughput    float64 `json:"throughput_items_sec"` // based on consumed count
	Timestamp     int64   `json:"timestamp"`
	GoVersion     string  `json:"go_version"`
	Error         string  `json:"error,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU      int     `json:"num_cpu"`
	GOMAXPROCS  int     `json:"gomaxprocs"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH      string  `json:"go_arch"`
	TotalMemory uint64  `json:"total_memory_bytes,omitempty"`
}

// Session represents one invocation of the CLI.
type Session struct {
	SessionTime string      `json:"session_time"`
	SystemInfo  SystemInfo  `json:"system_info"`
	Runs        []RunResult `json:"runs"`
}

// NewRunResult converts a pipeline result. err may be nil.
func NewRunResult(res pipeline.Result, queue pipeline.QueueKind, items int, err error) RunResult {
	r := RunResult{
		RunID:         res.RunID.String(),
		Mode:          res.Mode.String(),
		Queue:         string(queue),
		Workers:       res.Workers,
		Producers:     res.Producers,
		Items:         items,
		Produced:      res.Produced,
		Consumed:      res.Consumed,
		ActualElapsed: res.Elapsed.String(),
		Timestamp:     time.Now().Unix(),
		GoVersion:     runtime.Version(),
	}
	if res.Elapsed > 0 {
		r.Throughput = float64(res.Consumed) / res.Elapsed.Seconds()
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// GatherSystemInfo collects basic CPU and memory details.
func GatherSystemInfo() SystemInfo {
	info := SystemInfo{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		GOARCH:     runtime.GOARCH,
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUSpeedMHz = infos[0].Mhz
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
	}
	return info
}

// LoadSessions reads every session stored in filename. A missing file yields no sessions.
func LoadSessions(filename string) ([]Session, error) {
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", filename, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshalling %q: %w", filename, err)
	}
	return sessions, nil
}

// AppendSessions adds sessions to the ones already stored in filename.
func AppendSessions(filename string, sessions ...Session) error {
	previous, err := LoadSessions(filename)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(append(previous, sessions...), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling sessions: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", filename, err)
	}
	return nil
}

// WriteMarkdown writes a summary table of the last session, fastest run first.
func WriteMarkdown(w io.Writer, sessions []Session) error {
	if len(sessions) == 0 {
		return errors.New("no sessions found")
	}
	runs := append([]RunResult(nil), sessions[len(sessions)-1].Runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Throughput > runs[j].Throughput
	})

	if _, err := fmt.Fprint(w, "## Last Session Summary\n\n"+
		"| Mode        | Queue | Workers | Producers | Items | Elapsed      | Throughput (items/sec) |\n"+
		"|-------------|-------|---------|-----------|-------|--------------|------------------------|\n"); err != nil {
		return err
	}
	for _, r := range runs {
		if _, err := fmt.Fprintf(w, "| %-11s | %-5s | %7d | %9d | %5d | %-12s | %22.0f |\n",
			r.Mode, r.Queue, r.Workers, r.Producers, r.Items, r.ActualElapsed, r.Throughput); err != nil {
			return err
		}
	}
	return nil
}
