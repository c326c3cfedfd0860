package output

import (
	"github.com/hupe1980/livemirror/internal/mirror"
)

// SyncReport is the structured result of a sync run.
type SyncReport struct {
	Src     string               `json:"src" yaml:"src"`
	Dest    string               `json:"dest" yaml:"dest"`
	Hash    string               `json:"hash" yaml:"hash"`
	DryRun  bool                 `json:"dryRun" yaml:"dryRun"`
	Planned []mirror.PlannedCopy `json:"planned" yaml:"planned"`
	Stats   *SyncStats           `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// SyncStats is a plain snapshot of mirror.Stats.
type SyncStats struct {
	Copied    int64 `json:"copied" yaml:"copied"`
	Unchanged int64 `json:"unchanged" yaml:"unchanged"`
	Ignored   int64 `json:"ignored" yaml:"ignored"`
	Failed    int64 `json:"failed" yaml:"failed"`
}

// SnapshotStats copies the counters out of s.
func SnapshotStats(s *mirror.Stats) *SyncStats {
	if s == nil {
		return nil
	}

	return &SyncStats{
		Copied:    s.Copied.Load(),
		Unchanged: s.Unchanged.Load(),
		Ignored:   s.Ignored.Load(),
		Failed:    s.Failed.Load(),
	}
}
