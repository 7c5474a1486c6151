package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_JointErrorSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		if got := bd.Check(WindowStats{WindowEndStep: int64(i * 60), JointErrMax: 0.02}); len(got) != 0 {
			t.Fatalf("window %d: unexpected bookmarks %v", i, got)
		}
	}

	bookmarks := bd.Check(WindowStats{WindowEndStep: 300, JointErrMax: 0.5})
	if !hasBookmark(bookmarks, BookmarkJointErrorSpike) {
		t.Error("expected joint_error_spike bookmark")
	}
}

func TestBookmarkDetector_IgnoresTinySpikes(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{JointErrMax: 1e-6, KineticEnergy: 1e-3})
	}
	bookmarks := bd.Check(WindowStats{JointErrMax: 1e-4, KineticEnergy: 0.5})
	if len(bookmarks) != 0 {
		t.Errorf("expected no bookmarks for tiny values, got %v", bookmarks)
	}
}

func TestBookmarkDetector_EnergySpike(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 3; i++ {
		bd.Check(WindowStats{KineticEnergy: 100})
	}

	if got := bd.Check(WindowStats{KineticEnergy: 300}); hasBookmark(got, BookmarkEnergySpike) {
		t.Error("3x average should not trigger energy_spike")
	}
	if got := bd.Check(WindowStats{KineticEnergy: 5000}); !hasBookmark(got, BookmarkEnergySpike) {
		t.Error("expected energy_spike bookmark")
	}
}

func TestBookmarkDetector_SettledOnce(t *testing.T) {
	bd := NewBookmarkDetector(5)

	if got := bd.Check(WindowStats{Active: 4}); hasBookmark(got, BookmarkSettled) {
		t.Error("settled while bodies are awake")
	}
	if got := bd.Check(WindowStats{Sleeping: 4}); !hasBookmark(got, BookmarkSettled) {
		t.Error("expected settled bookmark")
	}
	if got := bd.Check(WindowStats{Sleeping: 4}); hasBookmark(got, BookmarkSettled) {
		t.Error("settled reported twice")
	}
	if got := bd.Check(WindowStats{Active: 1, Sleeping: 3}); !hasBookmark(got, BookmarkWoke) {
		t.Error("expected woke bookmark")
	}
}
