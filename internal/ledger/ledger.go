// Package ledger persists which highlights have already been delivered.
//
// The ledger tracks two sets: bookmark identifiers issued by the reading
// platform and content fingerprints of delivered text. Both survive across
// runs in a single JSON file that is replaced atomically on every persist,
// so a crash mid-write leaves the previous state intact.
//
// # Usage
//
//	l, err := ledger.Load("synced_bookmarks.json")
//	if err != nil {
//		log.Warn().Err(err).Msg("starting from an empty ledger")
//	}
//	if !l.Contains(id) {
//		// deliver, then
//		l.RecordDelivery(id, fp)
//	}
//	if err := l.Persist(); err != nil {
//		log.Warn().Err(err).Msg("ledger not saved")
//	}
//
// The ledger assumes a single writer per process.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// CurrentVersion is written on every persist. Files without a version field
// were produced by the id-only format and load as version 1.
const CurrentVersion = 2

var ErrCorrupt = errors.New("ledger file is corrupt")

type fileFormat struct {
	Version            int      `json:"version"`
	SyncedIDs          []string `json:"synced_ids"`
	SyncedFingerprints []string `json:"synced_fingerprints"`
	LastSync           string   `json:"last_sync"`
	TotalSynced        int      `json:"total_synced"`
}

// Legacy files carry naive local timestamps with microseconds.
var lastSyncLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

type Ledger struct {
	mu       sync.RWMutex
	path     string
	ids      map[string]struct{}
	fps      map[string]struct{}
	version  int
	lastSync time.Time

	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// New returns an empty ledger bound to path. Nothing is read or written.
func New(path string) *Ledger {
	return &Ledger{
		path:    path,
		ids:     make(map[string]struct{}),
		fps:     make(map[string]struct{}),
		version: CurrentVersion,
		now:     time.Now,
		rename:  os.Rename,
	}
}

// Load reads the ledger at path. It always returns a usable ledger: a missing
// file yields an empty one with a nil error, an unreadable or malformed file
// yields an empty one together with an error the caller should surface as a
// warning.
func Load(path string) (*Ledger, error) {
	l := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return l, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return l, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	for _, id := range file.SyncedIDs {
		if id != "" {
			l.ids[id] = struct{}{}
		}
	}
	for _, fp := range file.SyncedFingerprints {
		if fp != "" {
			l.fps[fp] = struct{}{}
		}
	}

	l.version = file.Version
	if l.version == 0 {
		l.version = 1
	}
	l.lastSync = parseLastSync(file.LastSync)

	return l, nil
}

func parseLastSync(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range lastSyncLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (l *Ledger) Path() string {
	return l.path
}

// Version reports the format version the ledger was loaded from.
func (l *Ledger) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// ContainsFingerprint is always false for the empty fingerprint.
func (l *Ledger) ContainsFingerprint(fp string) bool {
	if fp == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.fps[fp]
	return ok
}

// RecordDelivery marks a bookmark as delivered. Recording the same id twice
// is a no-op; an empty fingerprint is not stored.
func (l *Ledger) RecordDelivery(id, fp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id != "" {
		l.ids[id] = struct{}{}
	}
	if fp != "" {
		l.fps[fp] = struct{}{}
	}
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

func (l *Ledger) FingerprintCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fps)
}

// LastSync is the time of the last successful persist, zero if never.
func (l *Ledger) LastSync() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSync
}

// Persist writes the ledger to a temporary file beside the target and
// renames it into place.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	file := fileFormat{
		Version:            CurrentVersion,
		SyncedIDs:          sortedKeys(l.ids),
		SyncedFingerprints: sortedKeys(l.fps),
		LastSync:           now.Format(time.RFC3339),
		TotalSynced:        len(l.ids),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".ledger_tmp_")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmpFile.Name()
	renamed := false
	defer func() {
		tmpFile.Close()
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}

	if err := l.rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	renamed = true

	l.version = CurrentVersion
	l.lastSync = now
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
