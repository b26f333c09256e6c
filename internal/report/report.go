// Package report renders operator-facing summaries of the pipeline and the
// delivery ledger.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/pipeline"
)

// Snapshot aggregates everything the status views render.
type Snapshot struct {
	Stages  map[string]pipeline.StageCounts
	Breaker string
	Ledger  ledger.StatsSummary
	Pending int
}

// stageOrder fixes the display order; map iteration would shuffle it.
var stageOrder = []string{
	pipeline.StageEntry,
	pipeline.StageUpload,
	pipeline.StageProcessingCheck,
	pipeline.StageAnalysis,
}

// RenderStatus produces the full status view: stage counters, ledger
// totals, breaker position and outbox depth.
func RenderStatus(snap Snapshot) string {
	var b strings.Builder

	b.WriteString(renderStages(snap.Stages))
	b.WriteString("\n\n")
	b.WriteString(renderLedger(snap.Ledger))

	b.WriteString(fmt.Sprintf("\n\nBreaker: %s", orDash(snap.Breaker)))
	b.WriteString(fmt.Sprintf("\nOutbox:  %d pending", snap.Pending))
	return b.String()
}

func renderStages(stages map[string]pipeline.StageCounts) string {
	rows := make([][]string, 0, len(stages))
	for _, stage := range stageOrder {
		counts, ok := stages[stage]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			stage,
			fmt.Sprintf("%d", counts.Waiting),
			fmt.Sprintf("%d", counts.Active),
			fmt.Sprintf("%d", counts.Delayed),
			fmt.Sprintf("%d", counts.Completed),
			fmt.Sprintf("%d", counts.Failed),
		})
	}
	return renderTable(
		[]string{"Stage", "Waiting", "Active", "Delayed", "Completed", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderLedger(stats ledger.StatsSummary) string {
	inFlight := stats.Total - stats.Delivered - stats.Failed
	if inFlight < 0 {
		inFlight = 0
	}
	rows := [][]string{
		{"Total", fmt.Sprintf("%d", stats.Total)},
		{"In flight", fmt.Sprintf("%d", inFlight)},
		{"Delivered", fmt.Sprintf("%d", stats.Delivered)},
		{"Failed", fmt.Sprintf("%d", stats.Failed)},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()*100)},
	}
	return renderTable(
		[]string{"Ledger", "Count"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

// RenderProblems lists terminal failures newest first with a humanized age.
func RenderProblems(problems []ledger.ProblemJob, now time.Time) string {
	if len(problems) == 0 {
		return "No recorded problems."
	}
	sorted := append([]ledger.ProblemJob(nil), problems...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, []string{
			shortID(p.TransactionID),
			p.Stage,
			p.ErrorKind,
			fmt.Sprintf("%d", p.Attempts),
			humanize.RelTime(p.CreatedAt, now, "ago", "from now"),
			truncate(p.Detail, 60),
		})
	}
	return renderTable(
		[]string{"Transaction", "Stage", "Kind", "Attempts", "When", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// RenderTransactions lists recent ledger transactions.
func RenderTransactions(transactions []*ledger.Transaction, now time.Time) string {
	if len(transactions) == 0 {
		return "No transactions."
	}
	rows := make([][]string, 0, len(transactions))
	for _, txn := range transactions {
		rows = append(rows, []string{
			shortID(txn.ID),
			string(txn.Kind),
			string(txn.Status),
			fmt.Sprintf("%d", txn.Attempts),
			humanize.RelTime(txn.UpdatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"Transaction", "Kind", "Status", "Attempts", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
