package pipeline

import "sync/atomic"

type stageStats struct {
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	delayed   atomic.Int64
}

// StageCounts is a point-in-time view of one stage queue.
type StageCounts struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
}

// Snapshot returns per-stage counts for the status report.
func (m *Manager) Snapshot() map[string]StageCounts {
	waiting := map[string]int{
		StageEntry:           len(m.entryQ),
		StageUpload:          len(m.uploadQ),
		StageProcessingCheck: len(m.processingQ),
		StageAnalysis:        len(m.analysisQ),
	}
	out := make(map[string]StageCounts, len(m.stats))
	for stage, stats := range m.stats {
		out[stage] = StageCounts{
			Waiting:   waiting[stage],
			Active:    int(stats.active.Load()),
			Completed: int(stats.completed.Load()),
			Failed:    int(stats.failed.Load()),
			Delayed:   int(stats.delayed.Load()),
		}
	}
	return out
}

// BreakerState exposes the inference breaker position for diagnostics.
func (m *Manager) BreakerState() string {
	return string(m.brk.State())
}
