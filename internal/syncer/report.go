package syncer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// MaxReportedIssues caps how many errors and warnings the report lists.
const MaxReportedIssues = 10

var reportFeatures = []string{FeatureAITags, FeatureAISummary, FeatureNotes}

// WriteReport prints a human readable summary of a finished run.
func WriteReport(w io.Writer, s RunStatistics) error {
	rule := strings.Repeat("=", 70)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	if s.Cancelled {
		fmt.Fprintln(&b, "Sync cancelled")
	} else {
		fmt.Fprintln(&b, "Sync finished")
	}
	fmt.Fprintln(&b, rule)

	fmt.Fprintf(&b, "Run:              %s\n", s.RunID)
	fmt.Fprintf(&b, "Duration:         %s\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Books processed:  %d/%d", s.ProcessedBooks, s.TotalBooks)
	if s.FailedBooks > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.FailedBooks)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "New highlights:   %d\n", s.Synced)
	fmt.Fprintf(&b, "Failed:           %d\n", s.Failed)
	fmt.Fprintf(&b, "Skipped:          %d%s\n", s.Skipped, formatReasons(s.SkipByReason))
	if s.Deferred > 0 {
		fmt.Fprintf(&b, "Deferred:         %d (run quota)\n", s.Deferred)
	}
	fmt.Fprintf(&b, "Ledger total:     %d\n", s.LedgerSize)
	fmt.Fprintf(&b, "Sink calls:       %d/%d\n", s.SinkCalls, s.SinkLimit)
	if s.QuotaExhausted {
		fmt.Fprintln(&b, "Run quota reached, remaining highlights wait for the next run")
	}
	if s.DailyCapHit {
		fmt.Fprintln(&b, "Daily sink limit reached")
	}

	var features []string
	for _, name := range reportFeatures {
		stat, ok := s.Features[name]
		if !ok || stat.Attempts == 0 {
			continue
		}
		features = append(features, fmt.Sprintf("  %-12s %d/%d (%.1f%%)", name, stat.Successes, stat.Attempts, stat.SuccessRate()))
	}
	if len(features) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Features:")
		for _, line := range features {
			fmt.Fprintln(&b, line)
		}
	}

	if len(s.SyncedBooks) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Synced books:")
		for _, book := range s.SyncedBooks {
			fmt.Fprintf(&b, "  《%s》- %s: %d\n", book.Title, book.Author, book.Count)
		}
	}

	writeIssues(&b, "Errors", s.Errors)
	writeIssues(&b, "Warnings", s.Warnings)

	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func formatReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, reasons[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func writeIssues(b *strings.Builder, title string, issues []string) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(b)
	fmt.Fprintf(b, "%s (%d):\n", title, len(issues))
	for i, issue := range issues {
		if i == MaxReportedIssues {
			fmt.Fprintf(b, "  ... and %d more\n", len(issues)-MaxReportedIssues)
			break
		}
		fmt.Fprintf(b, "  - %s\n", issue)
	}
}
