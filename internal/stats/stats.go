// Package stats keeps per-summary usage rows and writes them to the monthly
// CSV file and a JSON snapshot.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// CSVHeader is the header row of the monthly statistics file
var CSVHeader = []string{"timestamp", "category", "tokens_used", "cost_usd", "article_count"}

// Snapshot is the JSON document written after each run
type Snapshot struct {
	Timestamp       time.Time             `json:"timestamp"`
	TotalTokensUsed int                   `json:"total_tokens_used"`
	TotalCostUSD    float64               `json:"total_cost_usd"`
	GenerationCount int                   `json:"generation_count"`
	Details         []core.GenerationStat `json:"details"`
}

// Summary aggregates the recorded rows
type Summary struct {
	TotalTokensUsed         int     `json:"total_tokens_used"`
	TotalCostUSD            float64 `json:"total_cost_usd"`
	GenerationCount         int     `json:"generation_count"`
	AverageTokensPerSummary float64 `json:"average_tokens_per_summary"`
	AverageCostPerSummary   float64 `json:"average_cost_per_summary"`
}

// Recorder accumulates generation statistics for one run
type Recorder struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu    sync.Mutex
	stats []core.GenerationStat
}

// NewRecorder creates a recorder writing below dir. File names use loc.
func NewRecorder(dir string, loc *time.Location) *Recorder {
	if dir == "" {
		dir = "stats"
	}
	return &Recorder{dir: dir, loc: loc, now: time.Now}
}

// Add records the statistics row of a summary
func (r *Recorder) Add(record core.SummaryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, core.StatFromSummary(record))
}

// Stats returns a copy of the recorded rows
func (r *Recorder) Stats() []core.GenerationStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.GenerationStat, len(r.stats))
	copy(out, r.stats)
	return out
}

// Summary returns totals and averages of the recorded rows
func (r *Recorder) Summary() Summary {
	rows := r.Stats()
	var s Summary
	for _, row := range rows {
		s.TotalTokensUsed += row.TokensUsed
		s.TotalCostUSD += row.CostUSD
	}
	s.GenerationCount = len(rows)
	if len(rows) > 0 {
		s.AverageTokensPerSummary = float64(s.TotalTokensUsed) / float64(len(rows))
		s.AverageCostPerSummary = s.TotalCostUSD / float64(len(rows))
	}
	return s
}

// SaveCSV appends the recorded rows to the monthly file, writing the header
// only when the file is new. It returns the file path.
func (r *Recorder) SaveCSV() (string, error) {
	path := timeutil.MonthlyStatsFile(r.dir, r.now(), r.loc)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	_, statErr := os.Stat(path)
	writeHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open stats file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(CSVHeader); err != nil {
			return "", fmt.Errorf("failed to write stats header: %w", err)
		}
	}
	for _, row := range r.Stats() {
		ts := row.Timestamp
		if r.loc != nil {
			ts = ts.In(r.loc)
		}
		record := []string{
			ts.Format(time.RFC3339),
			string(row.Category),
			strconv.Itoa(row.TokensUsed),
			strconv.FormatFloat(row.CostUSD, 'f', -1, 64),
			strconv.Itoa(row.ArticleCount),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write stats row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush stats file: %w", err)
	}

	logger.Info("statistics saved", "path", path)
	return path, nil
}

// SaveJSON writes a snapshot of the recorded rows and returns the file path
func (r *Recorder) SaveJSON() (string, error) {
	now := r.now()
	if r.loc != nil {
		now = now.In(r.loc)
	}
	path := timeutil.SnapshotStatsFile(r.dir, now, r.loc)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	summary := r.Summary()
	details := r.Stats()
	if details == nil {
		details = []core.GenerationStat{}
	}
	data, err := json.MarshalIndent(Snapshot{
		Timestamp:       now,
		TotalTokensUsed: summary.TotalTokensUsed,
		TotalCostUSD:    summary.TotalCostUSD,
		GenerationCount: summary.GenerationCount,
		Details:         details,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode stats snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write stats snapshot %s: %w", path, err)
	}

	logger.Info("statistics snapshot saved", "path", path)
	return path, nil
}

// Save records every summary and writes both files. Failures are logged and
// returned, callers treat them as non-fatal.
func (r *Recorder) Save(records []core.SummaryRecord) error {
	for _, rec := range records {
		r.Add(rec)
	}

	var errs []error
	if _, err := r.SaveCSV(); err != nil {
		logger.Error("failed to save statistics csv", err)
		errs = append(errs, err)
	}
	if _, err := r.SaveJSON(); err != nil {
		logger.Error("failed to save statistics snapshot", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
