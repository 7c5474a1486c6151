package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version:  SnapshotVersion,
		Scenario: "chain",
		Step:     600,
		SimTime:  10,
		Gravity:  [3]float64{0, 0, -980},
		Particles: []ParticleState{
			{ID: 1, Kind: "kinematic", State: "kinematic", Level: 0, R: [4]float64{1, 0, 0, 0}},
			{ID: 2, Kind: "dynamic", State: "dynamic", Level: 1, Mass: 1, X: [3]float64{0, 0, -10}, R: [4]float64{1, 0, 0, 0}},
		},
		Joints: []JointState{{Index: 0, Parent: 1, Child: 2, Level: 0, LinearError: 0.001}},
		Bookmark: &Bookmark{
			Type:        BookmarkJointErrorSpike,
			Step:        600,
			Description: "Test bookmark",
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Step != snapshot.Step || loaded.Scenario != snapshot.Scenario {
		t.Errorf("header: got step %d scenario %q, want %d %q", loaded.Step, loaded.Scenario, snapshot.Step, snapshot.Scenario)
	}
	if len(loaded.Particles) != 2 || loaded.Particles[1].X[2] != -10 {
		t.Errorf("particles not restored: %+v", loaded.Particles)
	}
	if len(loaded.Joints) != 1 || loaded.Joints[0].Child != 2 {
		t.Errorf("joints not restored: %+v", loaded.Joints)
	}
	if loaded.Bookmark == nil || loaded.Bookmark.Type != BookmarkJointErrorSpike {
		t.Errorf("bookmark not restored: %+v", loaded.Bookmark)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version:  SnapshotVersion,
		Step:     5000,
		Bookmark: &Bookmark{Type: BookmarkEnergySpike, Step: 5000},
	}
	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if expected := filepath.Join(tmpDir, "snapshot_5000_energy_spike.json"); path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}

	path, err = SaveSnapshot(&Snapshot{Version: SnapshotVersion, Step: 3000}, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if expected := filepath.Join(tmpDir, "snapshot_3000.json"); path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected an error for an unknown snapshot version")
	}
}
