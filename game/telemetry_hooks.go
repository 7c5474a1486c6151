package game

import (
	"log/slog"

	"github.com/pthm-cable/pbd/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.step) {
		return
	}

	stats := g.collector.Flush(g.step, g.sim.Evolution().Time(), g.sim.Sample())
	perfStats := g.perf.Stats()
	g.lastStats = stats

	if g.opts.StatsCallback != nil {
		g.opts.StatsCallback(stats, perfStats)
	}

	if g.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.output.WriteStats(stats); err != nil {
		slog.Error("failed to write stats", "error", err)
	}

	for _, bm := range g.bookmarks.Check(stats) {
		if g.opts.LogStats {
			bm.LogBookmark()
		}
		if err := g.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if g.output != nil {
			g.saveSnapshot(&bm)
		}
	}
}

// saveSnapshot writes the current state tagged with a bookmark.
func (g *Game) saveSnapshot(bookmark *telemetry.Bookmark) {
	snapshot := g.sim.Snapshot(g.scene.Name, g.step)
	snapshot.Bookmark = bookmark

	path, err := g.output.WriteSnapshot(snapshot)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "step", g.step)
}

// LastStats returns the most recent window statistics.
func (g *Game) LastStats() telemetry.WindowStats {
	return g.lastStats
}
