package calib

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreCurrentStartsAtRevisionOne(t *testing.T) {
	s := NewStore(t.TempDir(), "default", Default(), nil)
	rev, cal := s.Current()
	if rev != 1 {
		t.Fatalf("initial revision = %d, want 1", rev)
	}
	if err := cal.Validate(); err != nil {
		t.Fatalf("seeded calibration should validate: %v", err)
	}
}

func TestStoreProposeRejectsInvalidCalibration(t *testing.T) {
	s := NewStore(t.TempDir(), "default", Default(), nil)
	bad := Default()
	bad.MinElevMM, bad.MaxElevMM = 100, -100
	if _, err := s.Propose(bad); err == nil {
		t.Fatalf("Propose should reject an invalid calibration")
	}
	rev, _ := s.Current()
	if rev != 1 {
		t.Fatalf("a rejected Propose must not advance the revision, got %d", rev)
	}
}

func TestStoreProposeInstallsNewRevisionWithoutMutatingOld(t *testing.T) {
	s := NewStore(t.TempDir(), "default", Default(), nil)
	_, firstCal := s.Current()

	next := Default()
	next.Alpha = 0.7
	rev, err := s.Propose(next)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if rev != 2 {
		t.Fatalf("revision after one Propose = %d, want 2", rev)
	}
	if firstCal.Alpha == 0.7 {
		t.Fatalf("the previously-read Calibration value must not be mutated by a later Propose")
	}
	_, cur := s.Current()
	if cur.Alpha != 0.7 {
		t.Fatalf("Current alpha = %v, want the newly proposed 0.7", cur.Alpha)
	}
}

func TestStorePersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "default", Default(), nil)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Grid != s.cur.Grid {
		t.Fatalf("loaded grid = %v, want %v", loaded.Grid, s.cur.Grid)
	}
}

func TestStoreLoadMissingReturnsErrMissing(t *testing.T) {
	s := NewStore(t.TempDir(), "nonexistent", Default(), nil)
	if _, err := s.Load(); err != ErrMissing {
		t.Fatalf("Load on a missing profile = %v, want ErrMissing", err)
	}
}

func TestStoreLoadOrDefaultFallsBackOnMissing(t *testing.T) {
	s := NewStore(t.TempDir(), "default", Default(), nil)
	def := Default()
	def.Alpha = 0.9
	got, err := s.LoadOrDefault(def)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if got.Alpha != 0.9 {
		t.Fatalf("LoadOrDefault alpha = %v, want fallback 0.9", got.Alpha)
	}
}

func TestStoreLoadQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "default", Default(), nil)
	path := filepath.Join(dir, "default.json")
	if err := os.WriteFile(path, []byte("not valid json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	if _, err := s.Load(); err == nil {
		t.Fatalf("Load of a corrupt file should error")
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("corrupt file should have been quarantined (renamed away), still present at %s", path)
	}
}

func TestStoreLoadRejectsGridMismatch(t *testing.T) {
	dir := t.TempDir()
	canonical := Default() // 200x150
	s := NewStore(dir, "default", canonical, nil)

	mismatched := Default()
	mismatched.Grid = Grid{Cols: 160, Rows: 120}
	mismatched.Baseline = make([]float32, 160*120)
	path := filepath.Join(dir, "default.json")
	b, err := json.MarshalIndent(record{SchemaVersion: schemaVersion, Calibration: mismatched}, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("seed mismatched profile: %v", err)
	}

	if _, err := s.Load(); !errors.Is(err, ErrCalibrationInvalid) {
		t.Fatalf("Load of a grid-mismatched profile = %v, want ErrCalibrationInvalid", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("grid-mismatched profile should have been quarantined, still present at %s", path)
	}
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "default", Default(), nil)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	changed := make(chan Revision, 1)
	if err := s.Watch(func(_ Calibration, rev Revision) { changed <- rev }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()

	updated := Default()
	updated.Alpha = 0.55
	b, err := json.MarshalIndent(record{SchemaVersion: schemaVersion, Calibration: updated}, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "default.json"), b, 0o644); err != nil {
		t.Fatalf("rewrite profile: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not observe the externally-rewritten profile in time")
	}
}
