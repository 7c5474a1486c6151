package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the solver state at the end of a step.
type Snapshot struct {
	Version  int        `json:"version"`
	Scenario string     `json:"scenario"`
	Step     int64      `json:"step"`
	SimTime  float64    `json:"sim_time"`
	Gravity  [3]float64 `json:"gravity"`

	Particles []ParticleState `json:"particles"`
	Joints    []JointState    `json:"joints"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// ParticleState holds one particle's state. Rotations are stored as
// (w, x, y, z).
type ParticleState struct {
	ID       uint32     `json:"id"`
	Kind     string     `json:"kind"`
	State    string     `json:"state"`
	Disabled bool       `json:"disabled,omitempty"`
	Level    int        `json:"level"`
	Mass     float64    `json:"mass"`
	X        [3]float64 `json:"x"`
	R        [4]float64 `json:"r"`
	V        [3]float64 `json:"v"`
	W        [3]float64 `json:"w"`
}

// JointState holds one joint's endpoints and solve state.
type JointState struct {
	Index        int     `json:"index"`
	Parent       uint32  `json:"parent"`
	Child        uint32  `json:"child"`
	Level        int     `json:"level"`
	LinearError  float64 `json:"linear_error"`
	AngularError float64 `json:"angular_error"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, sanitized)
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}
