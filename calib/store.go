/*
DESCRIPTION
  store.go implements the Calibration Store (spec.md §4.2): an
  in-memory, reference-counted-by-revision holder of the current
  Calibration, backed by atomic write-temp-then-rename persistence to a
  single named profile file, with an fsnotify watch on the profile
  directory so an externally-replaced file is picked up as a new
  revision without polling.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package calib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ErrMissing is returned by Load when no profile has been persisted
// yet; it is not a fatal condition, spec.md §4.2.
var ErrMissing = errors.New("calibration: profile not found")

// ErrCorrupt is returned when a persisted profile cannot be decoded;
// the corrupt file is moved aside and this is surfaced as
// CalibrationCorrupt (spec.md §7), not fatal.
var ErrCorrupt = errors.New("calibration: profile corrupt")

// schemaVersion tags the persisted record format (spec.md §6
// "self-describing, versioned record").
const schemaVersion = 1

// record is the on-disk representation of a Calibration.
type record struct {
	SchemaVersion int
	Calibration   Calibration
}

// Logger is the subset of logging.Logger this package needs.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// Store holds the current Calibration and its revision, and persists to
// a single named profile. The store never mutates an existing revision;
// Current returns a value copy paired with the revision it was read
// under, so callers can hold onto it for the duration of a frame
// regardless of later Propose calls (spec.md §3, §5).
type Store struct {
	log        Logger
	profileDir string
	profile    string // profile name, e.g. "default".

	// canonicalGrid is the engine's configured canonical grid (spec.md
	// §3), fixed for the life of the Store at the seed Calibration's
	// Grid. A persisted profile whose Grid disagrees is a shape
	// mismatch (spec.md §8 scenario 5), not merely a stale value.
	canonicalGrid Grid

	mu  sync.RWMutex
	cur Calibration
	rev Revision

	watcher *fsnotify.Watcher
	onLoad  func(Calibration, Revision)

	closed atomic.Bool
}

// NewStore returns a Store whose persisted profile lives at
// <dir>/<name>.json, seeded with cal at revision 1. cal.Grid is taken
// as the engine's canonical grid for the life of the Store; Load
// rejects any on-disk profile whose Grid disagrees with it.
func NewStore(dir, name string, cal Calibration, log Logger) *Store {
	return &Store{
		log:           log,
		profileDir:    dir,
		profile:       name,
		canonicalGrid: cal.Grid,
		cur:           cal,
		rev:           1,
	}
}

func (s *Store) path() string {
	return filepath.Join(s.profileDir, s.profile+".json")
}

// Current returns the current revision and Calibration value.
func (s *Store) Current() (Revision, Calibration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev, s.cur
}

// Propose validates new and, if valid, installs it as a new revision.
// It never mutates the previous revision's value.
func (s *Store) Propose(new Calibration) (Revision, error) {
	if err := new.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.cur = new
	if s.log != nil {
		s.log.Info("calibration: new revision proposed", "revision", s.rev)
	}
	return s.rev, nil
}

// Persist atomically writes the current Calibration to its profile
// file via write-temp + rename.
func (s *Store) Persist() error {
	s.mu.RLock()
	cal := s.cur
	s.mu.RUnlock()

	if err := os.MkdirAll(s.profileDir, 0o755); err != nil {
		return errors.Wrap(err, "calibration: could not create profile dir")
	}

	b, err := json.MarshalIndent(record{SchemaVersion: schemaVersion, Calibration: cal}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "calibration: could not encode profile")
	}

	dst := s.path()
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "calibration: could not write temp profile")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "calibration: could not rename temp profile into place")
	}
	return nil
}

// Load reads and validates the profile from storage, returning
// ErrMissing if absent (not fatal) and ErrCorrupt (after quarantining
// the bad file) if it cannot be decoded or fails validation.
func (s *Store) Load() (Calibration, error) {
	path := s.path()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Calibration{}, ErrMissing
	}
	if err != nil {
		return Calibration{}, errors.Wrap(err, "calibration: could not read profile")
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		s.quarantine(path)
		return Calibration{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if err := rec.Calibration.Validate(); err != nil {
		s.quarantine(path)
		return Calibration{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if rec.Calibration.Grid != s.canonicalGrid {
		s.quarantine(path)
		return Calibration{}, errors.Wrapf(ErrCalibrationInvalid,
			"stored calibration grid %dx%d does not match configured canonical grid %dx%d",
			rec.Calibration.Grid.Cols, rec.Calibration.Grid.Rows, s.canonicalGrid.Cols, s.canonicalGrid.Rows)
	}
	return rec.Calibration, nil
}

// quarantine moves a corrupt profile aside with a timestamp suffix so
// it doesn't keep failing to load, per spec.md §6.
func (s *Store) quarantine(path string) {
	dst := path + "." + time.Now().UTC().Format("20060102T150405") + ".corrupt"
	if err := os.Rename(path, dst); err != nil && s.log != nil {
		s.log.Error("calibration: could not quarantine corrupt profile", "path", path, "error", err.Error())
	}
}

// LoadOrDefault loads the persisted profile; on ErrMissing it returns
// def without error (the session then transitions through Calibrating
// per spec.md §4.7 until a real calibration arrives). It does not
// install either value into the Store; callers that want that call
// Propose with the result.
func (s *Store) LoadOrDefault(def Calibration) (Calibration, error) {
	cal, err := s.Load()
	if errors.Is(err, ErrMissing) {
		return def, nil
	}
	return cal, err
}

// Watch starts an fsnotify watch on the profile directory; whenever the
// profile file is written or created, it is reloaded and, if valid,
// installed as a new revision and reported via onChange. This is the
// hot-reload path SPEC_FULL.md adds beyond the explicit control
// channel.
func (s *Store) Watch(onChange func(Calibration, Revision)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "calibration: could not create fsnotify watcher")
	}
	if err := os.MkdirAll(s.profileDir, 0o755); err != nil {
		w.Close()
		return errors.Wrap(err, "calibration: could not create profile dir")
	}
	if err := w.Add(s.profileDir); err != nil {
		w.Close()
		return errors.Wrap(err, "calibration: could not watch profile dir")
	}
	s.watcher = w
	s.onLoad = onChange

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	target := s.path()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != target {
				continue
			}
			if !(ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				continue
			}
			cal, err := s.Load()
			if err != nil {
				if s.log != nil {
					s.log.Warning("calibration: hot reload failed", "error", err.Error())
				}
				continue
			}
			rev, err := s.Propose(cal)
			if err != nil {
				if s.log != nil {
					s.log.Warning("calibration: hot-reloaded profile failed validation", "error", err.Error())
				}
				continue
			}
			if s.onLoad != nil {
				s.onLoad(cal, rev)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.log != nil {
				s.log.Warning("calibration: fsnotify error", "error", err.Error())
			}
		}
	}
}

// Close stops the fsnotify watch, if any.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
