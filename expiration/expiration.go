// Package expiration tracks contract end dates and reports agreements that
// need renewal attention. The store is a single JSON document beside the
// processed-file state, written with the same temp-write-then-rename
// pattern.
package expiration

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DateLayout is the on-disk expiration date format.
const DateLayout = "2006-01-02"

// Record is one tracked contract.
type Record struct {
	ContractID string    `json:"contract_id"`
	Name       string    `json:"name"`
	ExpiresAt  string    `json:"expiration_date"`
	Type       string    `json:"contract_type,omitempty"`
	Parties    []string  `json:"parties,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// expiresOn parses the record's date. Records are validated on insert, so a
// parse failure here means the file was edited by hand; the record is
// reported as unparseable by callers rather than dropped.
func (r Record) expiresOn() (time.Time, error) {
	return time.Parse(DateLayout, r.ExpiresAt)
}

// Entry is a Record annotated with how close its end date is.
type Entry struct {
	Record
	DaysLeft int
}

// persistedExpirations is the on-disk document layout.
type persistedExpirations struct {
	Contracts []Record `json:"contracts"`
}

// Options configures a Store.
type Options struct {
	// Path is the expirations file location.
	Path string

	Logger *slog.Logger
}

// Store is the contract-expiration store. Like the processed-file state it
// is mutex-guarded so the daemon schedule and interactive commands can share
// one instance.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	records []Record
	index   map[string]int
}

// New creates a Store. State is loaded lazily on first access.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   opts.Path,
		logger: logger,
		index:  make(map[string]int),
	}
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read expirations, starting empty",
				"path", s.path,
				"error", err)
		}
		return
	}

	var state persistedExpirations
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Expirations file unreadable, starting empty",
			"path", s.path,
			"error", err)
		return
	}

	s.records = state.Contracts
	for i, r := range s.records {
		s.index[r.ContractID] = i
	}
}

// Set adds or replaces the expiration for a contract. The date must be in
// YYYY-MM-DD form.
func (s *Store) Set(rec Record) error {
	if rec.ContractID == "" {
		return fmt.Errorf("contract ID is required")
	}
	if rec.Name == "" {
		return fmt.Errorf("contract name is required")
	}
	if _, err := rec.expiresOn(); err != nil {
		return fmt.Errorf("invalid expiration date %q (want YYYY-MM-DD): %w", rec.ExpiresAt, err)
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	if i, ok := s.index[rec.ContractID]; ok {
		s.records[i] = rec
	} else {
		s.index[rec.ContractID] = len(s.records)
		s.records = append(s.records, rec)
	}

	if err := s.writeLocked(); err != nil {
		return err
	}

	s.logger.Info("Expiration tracked",
		slog.String("contract", rec.Name),
		slog.String("expires", rec.ExpiresAt))
	return nil
}

// Remove stops tracking a contract.
func (s *Store) Remove(contractID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	i, ok := s.index[contractID]
	if !ok {
		return fmt.Errorf("unknown contract ID: %s", contractID)
	}

	s.records = append(s.records[:i], s.records[i+1:]...)
	s.index = make(map[string]int, len(s.records))
	for j, r := range s.records {
		s.index[r.ContractID] = j
	}

	return s.writeLocked()
}

// All returns every tracked contract in insertion order.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return append([]Record(nil), s.records...)
}

// Count returns the number of tracked contracts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.records)
}

// Upcoming returns contracts whose end date falls within the next `days`
// days (today inclusive), soonest first. Records with an unparseable date
// are logged and skipped.
func (s *Store) Upcoming(now time.Time, days int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	today := truncateToDay(now)
	cutoff := today.AddDate(0, 0, days)

	var entries []Entry
	for _, r := range s.records {
		expires, err := r.expiresOn()
		if err != nil {
			s.logger.Warn("Skipping contract with invalid expiration date",
				"contract_id", r.ContractID,
				"date", r.ExpiresAt)
			continue
		}
		if expires.Before(today) || expires.After(cutoff) {
			continue
		}
		entries = append(entries, Entry{
			Record:   r,
			DaysLeft: int(expires.Sub(today).Hours() / 24),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DaysLeft < entries[j].DaysLeft
	})
	return entries
}

// writeLocked persists the current records with a temp file and atomic
// rename, matching the processed-file state's durability pattern.
func (s *Store) writeLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create expirations directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(persistedExpirations{Contracts: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal expirations: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp expirations file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write expirations: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync expirations: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close expirations: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace expirations: %w", err)
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
