package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryTracker(t *testing.T) {
	tracker := NewMemoryTracker()
	if tracker.AlreadyProcessed("d1") {
		t.Error("fresh tracker reports processed digest")
	}
	if err := tracker.MarkProcessed("d1", "Inbox/Hi"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !tracker.AlreadyProcessed("d1") {
		t.Error("marked digest not reported as processed")
	}
	if tracker.AlreadyProcessed("") {
		t.Error("empty digest must never match")
	}
	if got := tracker.Snapshot().Processed; got != 1 {
		t.Errorf("Snapshot().Processed = %d, want 1", got)
	}
}

func TestFileTracker_PersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkProcessed("d1", "Inbox/Hi"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.MarkProcessed("d2", "Inbox/Hello"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	resumed, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("reopening tracker: %v", err)
	}
	defer resumed.Close()
	if !resumed.AlreadyProcessed("d1") || !resumed.AlreadyProcessed("d2") {
		t.Error("digests lost across restart")
	}
	if resumed.AlreadyProcessed("d3") {
		t.Error("unknown digest reported as processed")
	}
	if got := resumed.Snapshot().Processed; got != 2 {
		t.Errorf("Snapshot().Processed = %d, want 2", got)
	}
}

func TestFileTracker_DryRunDoesNotPersist(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkProcessed("d1", "Inbox/Hi"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !tracker.AlreadyProcessed("d1") {
		t.Error("in-memory dedupe must still work without persistence")
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "exported.jsonl")); !os.IsNotExist(err) {
		t.Error("non-persisting tracker must not write a state file")
	}
}

func TestFileTracker_EmptyStateDirRejected(t *testing.T) {
	if _, err := NewFileTracker("  ", true); err == nil {
		t.Error("blank state directory must be rejected")
	}
}
