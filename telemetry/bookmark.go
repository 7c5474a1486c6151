package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkJointErrorSpike BookmarkType = "joint_error_spike"
	BookmarkEnergySpike     BookmarkType = "energy_spike"
	BookmarkSettled         BookmarkType = "settled"
	BookmarkWoke            BookmarkType = "woke"
)

// Minimum magnitudes before a spike is reported. Tiny absolute values
// produce large ratios on a scene at rest.
const (
	minJointErrorSpike = 0.01
	minEnergySpike     = 1.0
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int64        `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in a run: solver blow-ups
// and the scene coming to rest or waking up.
type BookmarkDetector struct {
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	settled bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkJointErrorSpike(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkEnergySpike(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkRest(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// rollingMean averages field over the history. ok is false until three
// windows have been seen.
func (bd *BookmarkDetector) rollingMean(field func(WindowStats) float64) (mean float64, ok bool) {
	history := bd.getHistory()
	if len(history) < 3 {
		return 0, false
	}
	values := make([]float64, len(history))
	for i, h := range history {
		values[i] = field(h)
	}
	return stat.Mean(values, nil), true
}

func (bd *BookmarkDetector) checkJointErrorSpike(stats WindowStats) *Bookmark {
	avg, ok := bd.rollingMean(func(s WindowStats) float64 { return s.JointErrMax })
	if !ok || stats.JointErrMax < minJointErrorSpike {
		return nil
	}
	if stats.JointErrMax > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkJointErrorSpike,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Max joint error %.4f is above twice the average (%.4f)", stats.JointErrMax, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkEnergySpike(stats WindowStats) *Bookmark {
	avg, ok := bd.rollingMean(func(s WindowStats) float64 { return s.KineticEnergy })
	if !ok || stats.KineticEnergy < minEnergySpike {
		return nil
	}
	if stats.KineticEnergy > avg*4.0 {
		return &Bookmark{
			Type:        BookmarkEnergySpike,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Kinetic energy %.1f is %.1fx average (%.1f)", stats.KineticEnergy, stats.KineticEnergy/max(avg, 1e-12), avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkRest(stats WindowStats) *Bookmark {
	resting := stats.Sleeping > 0 && stats.Active == 0
	switch {
	case resting && !bd.settled:
		bd.settled = true
		return &Bookmark{
			Type:        BookmarkSettled,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("All %d dynamic particles asleep", stats.Sleeping),
		}
	case !resting && bd.settled && stats.Active > 0:
		bd.settled = false
		return &Bookmark{
			Type:        BookmarkWoke,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("%d particles woke after rest", stats.Active),
		}
	}
	return nil
}
