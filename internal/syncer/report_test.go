package syncer

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	errs := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		errs = append(errs, fmt.Sprintf("error %d", i))
	}

	stats := RunStatistics{
		RunID:          "run-1",
		StartedAt:      fixedNow,
		FinishedAt:     fixedNow.Add(1500 * time.Millisecond),
		TotalBooks:     10,
		ProcessedBooks: 6,
		FailedBooks:    1,
		Synced:         12,
		Failed:         1,
		Skipped:        30,
		Deferred:       3,
		SkipByReason: map[string]int{
			"already_synced":    20,
			"outside_window":    8,
			"duplicate_content": 2,
		},
		Features: map[string]FeatureStat{
			FeatureAITags:    {Attempts: 12, Successes: 10},
			FeatureAISummary: {Attempts: 4, Successes: 4},
		},
		SyncedBooks: []SyncedBook{
			{Title: "思考，快与慢", Author: "丹尼尔·卡尼曼", Count: 7},
			{Title: "原则", Author: "瑞·达利欧", Count: 5},
		},
		Errors:         errs,
		Warnings:       []string{"tags for b1-1: rate limited"},
		SinkCalls:      13,
		SinkLimit:      100,
		LedgerSize:     150,
		QuotaExhausted: true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, stats))

	g := goldie.New(t)
	g.Assert(t, "report", buf.Bytes())
}

func TestWriteReport_EmptyCancelledRun(t *testing.T) {
	stats := RunStatistics{
		RunID:      "run-2",
		StartedAt:  fixedNow,
		FinishedAt: fixedNow,
		SinkLimit:  100,
		Cancelled:  true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, stats))

	g := goldie.New(t)
	g.Assert(t, "report_empty", buf.Bytes())
}
