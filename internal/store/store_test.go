package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/Tedsan/daily-topic/internal/core"
)

func setupTest(t *testing.T) *Store {
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "daily-topic.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func summary(category core.CategoryCode, at time.Time, tokens int, cost float64, articles int) core.SummaryRecord {
	return core.SummaryRecord{
		ID:           uuid.NewString(),
		GeneratedAt:  at,
		Category:     category,
		Summary:      "summary of " + string(category),
		KeyPoints:    []string{"a", "b"},
		Confidence:   0.8,
		InputTokens:  tokens - 100,
		OutputTokens: 100,
		TokensUsed:   tokens,
		CostUSD:      cost,
		Model:        "claude-3-sonnet-20240229",
		ArticleCount: articles,
		ArticleURLs:  []string{"https://example.com/1"},
	}
}

func TestNewStore_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.db")
	s, err := NewStore(path)
	assert.NilError(t, err)
	defer func() { _ = s.Close() }()

	_, err = os.Stat(path)
	assert.NilError(t, err)
}

func TestNewStore_InvalidDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	assert.NilError(t, os.WriteFile(file, []byte("test"), 0644))

	_, err := NewStore(filepath.Join(file, "stats.db"))
	assert.Assert(t, err != nil)
}

func TestSaveSummaries_RoundTrip(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	records := []core.SummaryRecord{
		summary(core.CategorySDV, at, 1000, 0.01, 3),
		summary(core.CategoryGenAITech, at, 800, 0.008, 2),
	}
	assert.NilError(t, s.SaveSummaries(ctx, "job-1", records))

	got, err := s.SummariesForJob(ctx, "job-1")
	assert.NilError(t, err)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Category, core.CategorySDV)
	assert.Equal(t, got[0].TokensUsed, 1000)
	assert.DeepEqual(t, got[0].KeyPoints, []string{"a", "b"})
	assert.DeepEqual(t, got[1].ArticleURLs, []string{"https://example.com/1"})
	assert.Assert(t, got[0].GeneratedAt.Equal(at))

	none, err := s.SummariesForJob(ctx, "job-2")
	assert.NilError(t, err)
	assert.Equal(t, len(none), 0)
}

func TestSaveRun_RecentRuns(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	assert.NilError(t, s.SaveRun(ctx, core.RunRecord{
		JobID: "job-1", StartedAt: base, FinishedAt: base.Add(time.Minute), Status: "success",
		URLCount: 9, ArticleCount: 6, SkipCounts: map[string]int{"fetch_failed": 2, "too_short": 1},
	}))
	assert.NilError(t, s.SaveRun(ctx, core.RunRecord{
		JobID: "job-2", StartedAt: base.Add(24 * time.Hour), FinishedAt: base.Add(25 * time.Hour),
		Status: "failed", FailedStep: "summary_generation", Error: "boom",
	}))

	runs, err := s.RecentRuns(ctx, 10)
	assert.NilError(t, err)
	assert.Equal(t, len(runs), 2)
	assert.Equal(t, runs[0].JobID, "job-2")
	assert.Equal(t, runs[0].FailedStep, "summary_generation")
	assert.Equal(t, runs[1].SkipCounts["fetch_failed"], 2)
}

func TestMonthlyTotals(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()

	jan := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	assert.NilError(t, s.SaveSummaries(ctx, "job-1", []core.SummaryRecord{
		summary(core.CategorySDV, jan, 1000, 0.01, 3),
		summary(core.CategorySDV, jan.Add(24*time.Hour), 500, 0.005, 1),
		summary(core.CategoryProtocols, jan, 200, 0.002, 2),
		summary(core.CategorySDV, feb, 9999, 1, 9),
	}))
	assert.NilError(t, s.SaveRun(ctx, core.RunRecord{JobID: "job-1", StartedAt: jan, FinishedAt: jan, Status: "success"}))
	assert.NilError(t, s.SaveRun(ctx, core.RunRecord{JobID: "job-2", StartedAt: jan, FinishedAt: jan, Status: "failed"}))

	totals, err := s.MonthlyTotals(ctx, jan)
	assert.NilError(t, err)
	assert.Equal(t, totals.Month, "2025-01")
	assert.Equal(t, totals.Summaries, 3)
	assert.Equal(t, totals.Tokens, 1700)
	assert.Equal(t, totals.Articles, 6)
	assert.Equal(t, totals.Runs, 2)
	assert.Equal(t, totals.FailedRuns, 1)
	assert.Equal(t, len(totals.ByCategory), 2)
	assert.Equal(t, totals.ByCategory[0].Category, core.CategorySDV)
	assert.Equal(t, totals.ByCategory[0].Summaries, 2)

	empty, err := s.MonthlyTotals(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.NilError(t, err)
	assert.Equal(t, empty.Summaries, 0)
	assert.Equal(t, empty.Runs, 0)
}

func TestGetStatsAndCleanup(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	assert.NilError(t, s.SaveSummaries(ctx, "job", []core.SummaryRecord{
		summary(core.CategorySDV, old, 100, 0.001, 1),
		summary(core.CategorySDV, recent, 100, 0.001, 1),
	}))

	stats, err := s.GetStats(ctx)
	assert.NilError(t, err)
	assert.Equal(t, stats.SummaryCount, 2)
	assert.Assert(t, stats.Size > 0)

	assert.NilError(t, s.Cleanup(ctx, 30*24*time.Hour))
	stats, err = s.GetStats(ctx)
	assert.NilError(t, err)
	assert.Equal(t, stats.SummaryCount, 1)
}
