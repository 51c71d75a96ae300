// Package tracker provides durable tracking of processed file IDs so a
// document is never analyzed and alerted on twice. State is persisted as a
// JSON document with an atomically replaced primary copy and a one-generation
// backup, and recovers automatically when the primary is corrupted.
package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record is a single processed-file entry. FileID is the only field that
// matters for correctness; the rest is retained for audit and reporting.
type Record struct {
	FileID      string    `json:"file_id"`
	Name        string    `json:"name,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	RiskScore   int       `json:"risk_score,omitempty"`
}

// Metadata carries the optional audit fields stored alongside a file ID.
type Metadata struct {
	Name      string
	RiskScore int
}

// persistedState is the on-disk document layout. The backup file uses the
// identical schema, one generation behind.
type persistedState struct {
	Processed []Record `json:"processed"`
}

// Options configures a Store.
type Options struct {
	// Path is the primary state file location.
	Path string

	// BackupPath is the backup file location. Empty derives
	// "<path-without-ext>.backup<ext>" next to the primary.
	BackupPath string

	// FlushEvery batches durable writes: a flush happens once this many
	// marks have accumulated. Zero or one flushes on every mark. Batching
	// is a performance knob only; correctness does not depend on it.
	FlushEvery int

	// OnFlushFailure, when set, is called each time a durable write fails.
	// Used for instrumentation.
	OnFlushFailure func()

	Logger *slog.Logger
}

// Store is the idempotency store for processed files. All access is
// serialized through one mutex so the scheduled scan path and interactive
// command paths can share a single instance.
type Store struct {
	path           string
	backupPath     string
	flushEvery     int
	onFlushFailure func()
	logger         *slog.Logger

	mu      sync.Mutex
	loaded  bool
	records []Record
	index   map[string]int
	pending int
}

// New creates a Store. State is loaded lazily on first access, or eagerly
// via Load.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backup := opts.BackupPath
	if backup == "" {
		backup = defaultBackupPath(opts.Path)
	}
	flushEvery := opts.FlushEvery
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Store{
		path:           opts.Path,
		backupPath:     backup,
		flushEvery:     flushEvery,
		onFlushFailure: opts.OnFlushFailure,
		logger:         logger,
		index:          make(map[string]int),
	}
}

// defaultBackupPath turns "state/processed.json" into
// "state/processed.backup.json".
func defaultBackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup" + ext
}

// Load reads persisted state into the in-memory cache and returns the number
// of known IDs. A corrupted or truncated primary falls back to the backup;
// if both are unreadable the store starts empty. Neither condition is fatal:
// losing remembered state means files get reprocessed, never lost.
func (s *Store) Load() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.records)
}

// ensureLoaded populates the cache from disk once. Callers hold s.mu.
func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true

	records, err := readStateFile(s.path)
	if err == nil {
		s.setRecords(records)
		return
	}
	if !os.IsNotExist(err) {
		s.logger.Error("Primary state file unreadable, trying backup",
			"path", s.path,
			"error", err)
	}

	records, berr := readStateFile(s.backupPath)
	if berr == nil {
		s.logger.Warn("Recovered processed state from backup",
			"backup", s.backupPath,
			"count", len(records))
		s.setRecords(records)
		// Re-materialize the primary so the next generation cycle starts
		// from a valid file.
		if werr := s.writePrimary(); werr != nil {
			s.logger.Error("Failed to restore primary from backup", "error", werr)
		}
		return
	}

	if !os.IsNotExist(err) || !os.IsNotExist(berr) {
		s.logger.Error("Both state copies unreadable, starting empty; previously processed files may be reprocessed",
			"path", s.path,
			"backup", s.backupPath)
	}
	s.setRecords(nil)
}

func (s *Store) setRecords(records []Record) {
	s.records = s.records[:0]
	s.index = make(map[string]int, len(records))
	for _, r := range records {
		if r.FileID == "" {
			continue
		}
		if _, dup := s.index[r.FileID]; dup {
			continue
		}
		s.index[r.FileID] = len(s.records)
		s.records = append(s.records, r)
	}
}

// readStateFile parses one state file. It accepts the current object layout
// and the legacy bare-array-of-IDs form.
func readStateFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err == nil {
		return state.Processed, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		records := make([]Record, 0, len(ids))
		for _, id := range ids {
			records = append(records, Record{FileID: id})
		}
		return records, nil
	}

	return nil, fmt.Errorf("parse state file %s: unrecognized format", path)
}

// IsProcessed reports whether the file ID has been committed. Pure cache
// lookup; never touches disk after the initial load.
func (s *Store) IsProcessed(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	_, ok := s.index[fileID]
	return ok
}

// MarkProcessed commits a file ID with optional metadata. Marking an already
// known ID is a no-op. Flush failures are logged and swallowed: a lost flush
// degrades crash-recovery accuracy (the file may be reprocessed after a
// crash) but must never halt the scan cycle.
func (s *Store) MarkProcessed(fileID string, meta Metadata) {
	if fileID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	if _, ok := s.index[fileID]; ok {
		return
	}

	s.index[fileID] = len(s.records)
	s.records = append(s.records, Record{
		FileID:      fileID,
		Name:        meta.Name,
		ProcessedAt: time.Now().UTC(),
		RiskScore:   meta.RiskScore,
	})
	s.pending++

	if s.pending < s.flushEvery {
		return
	}
	if err := s.flushLocked(); err != nil {
		s.logger.Error("Failed to persist processed state; entry kept in memory",
			"file_id", fileID,
			"error", err)
	}
}

// Flush forces a durable write of any pending state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	if s.pending == 0 {
		return nil
	}
	return s.flushLocked()
}

// flushLocked performs the durable write. The current primary is copied to
// the backup location first (only when it still parses, so a corrupt primary
// can never clobber the last good backup), then the new state is written to
// a temp file and atomically renamed over the primary. A crash at any point
// leaves at least one structurally valid copy on disk.
func (s *Store) flushLocked() error {
	s.refreshBackup()

	if err := s.writePrimary(); err != nil {
		if s.onFlushFailure != nil {
			s.onFlushFailure()
		}
		return err
	}
	s.pending = 0
	return nil
}

func (s *Store) refreshBackup() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if !json.Valid(data) {
		s.logger.Warn("Primary state invalid, keeping existing backup", "path", s.path)
		return
	}
	if err := os.WriteFile(s.backupPath, data, 0o644); err != nil {
		s.logger.Error("Failed to refresh state backup",
			"backup", s.backupPath,
			"error", err)
	}
}

func (s *Store) writePrimary() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(persistedState{Processed: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Remove deletes a file ID so it becomes eligible for reprocessing. This is
// an administrative operation; the scan cycle never removes entries.
func (s *Store) Remove(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	i, ok := s.index[fileID]
	if !ok {
		return nil
	}

	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, fileID)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].FileID] = j
	}

	s.pending++
	return s.flushLocked()
}

// Clear resets all processed state. The prior state survives in the backup
// for one generation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	s.setRecords(nil)
	s.pending++
	return s.flushLocked()
}

// Count returns the number of committed file IDs.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.records)
}

// Records returns a copy of the committed records in insertion order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Stats describes the store's on-disk footprint for status reporting.
type Stats struct {
	Count         int
	PrimaryExists bool
	BackupExists  bool
	PrimarySize   int64
}

// Stats reports the current store statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	stats := Stats{Count: len(s.records)}
	if fi, err := os.Stat(s.path); err == nil {
		stats.PrimaryExists = true
		stats.PrimarySize = fi.Size()
	}
	if _, err := os.Stat(s.backupPath); err == nil {
		stats.BackupExists = true
	}
	return stats
}
