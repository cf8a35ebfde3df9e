// Package store keeps an SQLite audit trail of generated summaries and
// pipeline runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Tedsan/daily-topic/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS summary_logs (
	id TEXT PRIMARY KEY,
	job_id TEXT,
	generated_at DATETIME,
	category TEXT,
	summary TEXT,
	key_points TEXT,
	confidence REAL,
	input_tokens INTEGER,
	output_tokens INTEGER,
	tokens_used INTEGER,
	cost_usd REAL,
	model TEXT,
	article_count INTEGER,
	article_urls TEXT
);
CREATE INDEX IF NOT EXISTS idx_summary_logs_generated_at ON summary_logs (generated_at);

CREATE TABLE IF NOT EXISTS runs (
	job_id TEXT PRIMARY KEY,
	started_at DATETIME,
	finished_at DATETIME,
	status TEXT,
	failed_step TEXT,
	error TEXT,
	url_count INTEGER,
	article_count INTEGER,
	skip_counts TEXT,
	total_tokens INTEGER,
	total_cost_usd REAL
);`

// Store represents the SQLite-based audit store
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSummaries stores the summaries produced by one run
func (s *Store) SaveSummaries(ctx context.Context, jobID string, records []core.SummaryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT OR REPLACE INTO summary_logs
	(id, job_id, generated_at, category, summary, key_points, confidence, input_tokens, output_tokens,
	 tokens_used, cost_usd, model, article_count, article_urls)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, r := range records {
		keyPoints, _ := json.Marshal(r.KeyPoints)
		urls, _ := json.Marshal(r.ArticleURLs)
		_, err := tx.ExecContext(ctx, query,
			r.ID, jobID, r.GeneratedAt.UTC(), string(r.Category), r.Summary, string(keyPoints), r.Confidence,
			r.InputTokens, r.OutputTokens, r.TokensUsed, r.CostUSD, r.Model, r.ArticleCount, string(urls))
		if err != nil {
			return fmt.Errorf("failed to insert summary %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// SummariesForJob returns the summaries stored for jobID in insertion order
func (s *Store) SummariesForJob(ctx context.Context, jobID string) ([]core.SummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, generated_at, category, summary, key_points, confidence, input_tokens, output_tokens,
	       tokens_used, cost_usd, model, article_count, article_urls
	FROM summary_logs WHERE job_id = ? ORDER BY rowid`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var records []core.SummaryRecord
	for rows.Next() {
		var (
			r                core.SummaryRecord
			category         string
			keyPoints, links string
		)
		if err := rows.Scan(&r.ID, &r.GeneratedAt, &category, &r.Summary, &keyPoints, &r.Confidence,
			&r.InputTokens, &r.OutputTokens, &r.TokensUsed, &r.CostUSD, &r.Model, &r.ArticleCount, &links); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		r.Category = core.CategoryCode(category)
		_ = json.Unmarshal([]byte(keyPoints), &r.KeyPoints)
		_ = json.Unmarshal([]byte(links), &r.ArticleURLs)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveRun stores or replaces a run record
func (s *Store) SaveRun(ctx context.Context, run core.RunRecord) error {
	skips, _ := json.Marshal(run.SkipCounts)
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs
	(job_id, started_at, finished_at, status, failed_step, error, url_count, article_count, skip_counts,
	 total_tokens, total_cost_usd)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.JobID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, run.FailedStep, run.Error,
		run.URLCount, run.ArticleCount, string(skips), run.TotalTokens, run.TotalCostUSD)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.JobID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT job_id, started_at, finished_at, status, failed_step, error, url_count, article_count,
	       skip_counts, total_tokens, total_cost_usd
	FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []core.RunRecord
	for rows.Next() {
		var (
			r     core.RunRecord
			skips string
		)
		if err := rows.Scan(&r.JobID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.FailedStep, &r.Error,
			&r.URLCount, &r.ArticleCount, &skips, &r.TotalTokens, &r.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		_ = json.Unmarshal([]byte(skips), &r.SkipCounts)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CategoryTotals is the usage of one category
type CategoryTotals struct {
	Category  core.CategoryCode
	Summaries int
	Tokens    int
	CostUSD   float64
	Articles  int
}

// MonthlyTotals is the usage of one calendar month
type MonthlyTotals struct {
	Month      string
	Runs       int
	FailedRuns int
	Summaries  int
	Tokens     int
	CostUSD    float64
	Articles   int
	ByCategory []CategoryTotals
}

// MonthlyTotals aggregates the summaries and runs of the month containing month.
// Month boundaries follow the location of month.
func (s *Store) MonthlyTotals(ctx context.Context, month time.Time) (*MonthlyTotals, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	end := start.AddDate(0, 1, 0)
	from, to := start.UTC(), end.UTC()

	totals := &MonthlyTotals{Month: start.Format("2006-01")}

	rows, err := s.db.QueryContext(ctx, `
	SELECT category, COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost_usd), 0), COALESCE(SUM(article_count), 0)
	FROM summary_logs
	WHERE generated_at >= ? AND generated_at < ?
	GROUP BY category ORDER BY category`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c        CategoryTotals
			category string
		)
		if err := rows.Scan(&category, &c.Summaries, &c.Tokens, &c.CostUSD, &c.Articles); err != nil {
			return nil, fmt.Errorf("failed to scan monthly totals: %w", err)
		}
		c.Category = core.CategoryCode(category)
		totals.ByCategory = append(totals.ByCategory, c)
		totals.Summaries += c.Summaries
		totals.Tokens += c.Tokens
		totals.CostUSD += c.CostUSD
		totals.Articles += c.Articles
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0)
	FROM runs WHERE started_at >= ? AND started_at < ?`, from, to).Scan(&totals.Runs, &totals.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	return totals, nil
}

// Stats represents database statistics
type Stats struct {
	SummaryCount int
	RunCount     int
	Size         int64
	LastUpdated  time.Time
}

// GetStats returns row counts and the database file size
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := map[string]*int{
		"SELECT COUNT(*) FROM summary_logs": &stats.SummaryCount,
		"SELECT COUNT(*) FROM runs":         &stats.RunCount,
	}
	for query, target := range queries {
		if err := s.db.QueryRowContext(ctx, query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.Size = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}
	return stats, nil
}

// Cleanup removes summaries and runs older than maxAge
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM summary_logs WHERE generated_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean old summaries: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean old runs: %w", err)
	}
	return nil
}
