package recorder

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketVault/internal/model"
)

func openRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "db", "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleResult() *model.BatchResult {
	res := model.NewBatchResult()
	res.Succeed(model.MustParseSymbol("us:AAPL"), model.ActionSkip)
	res.Succeed(model.MustParseSymbol("us:MSFT"), model.ActionIncremental)
	res.Succeed(model.MustParseSymbol("hk:00700"), model.ActionFullRefresh)
	res.Fail(model.MustParseSymbol("cn:600519"), fmt.Errorf("fetch cn:600519: %w", model.ErrFetch))
	res.Pending = []model.Symbol{model.MustParseSymbol("cn:000001")}
	return res
}

func TestNewRunRecord(t *testing.T) {
	start := time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC)
	rec := NewRunRecord(sampleResult(), start, start.Add(90*time.Second), errors.New("context canceled"))

	assert.Equal(t, 3, rec.Succeeded)
	assert.Equal(t, 1, rec.Failed)
	assert.Equal(t, 1, rec.Pending)
	assert.Equal(t, 1, rec.Skipped)
	assert.Equal(t, 1, rec.Incremental)
	assert.Equal(t, 1, rec.FullRefresh)
	assert.Equal(t, "context canceled", rec.Err)
	assert.Equal(t, 90*time.Second, rec.Duration())
	assert.False(t, rec.OK())
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, Failure{Symbol: "cn:600519", Kind: "fetch", Message: "fetch cn:600519: fetch failed"}, rec.Failures[0])
}

func TestRecordAndReadRuns(t *testing.T) {
	r := openRecorder(t)
	base := time.Date(2026, 10, 12, 22, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		started := base.AddDate(0, 0, i)
		rec := NewRunRecord(sampleResult(), started, started.Add(time.Minute), nil)
		rec.Trigger = "cron"
		rec.Source = "yahoo"
		rec.Force = i == 2
		require.NoError(t, r.RecordRun(rec))
		assert.NotZero(t, rec.ID)
	}

	runs, err := r.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.Equal(base.AddDate(0, 0, 2)))
	assert.True(t, runs[0].Force)
	assert.False(t, runs[1].Force)
	assert.Equal(t, "cron", runs[0].Trigger)
	assert.Equal(t, 3, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Pending)
	assert.Equal(t, time.Minute, runs[0].Duration())
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, "cn:600519", runs[0].Failures[0].Symbol)
}

func TestRecordQuality(t *testing.T) {
	r := openRecorder(t)
	sym := model.MustParseSymbol("hk:00700")

	require.NoError(t, r.RecordQuality(&model.QualityReport{Symbol: sym, Bars: 10}))
	n, err := r.DefectCount(sym)
	require.NoError(t, err)
	assert.Zero(t, n)

	d := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.RecordQuality(&model.QualityReport{
		Symbol:  sym,
		Gaps:    []model.Gap{{From: d, To: d.AddDate(0, 0, 14), Days: 14}},
		Defects: []model.Defect{{Kind: model.DefectNull, Field: "volume", Date: d}},
	}))
	n, err = r.DefectCount(sym)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordRun(&RunRecord{}))
	runs, err := r.RecentRuns(5)
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, r.Close())
}
