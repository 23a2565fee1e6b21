// Package profile provides the durable profile store: the mapping from
// oracle-assigned identity ids to user-chosen display names, plus the two
// independently persisted browser-scoped settings (collection id, default
// name).
package profile

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// PlaceholderName marks a profile without a user-chosen name. It must never
// be presented to the user as a real name.
const PlaceholderName = "Unknown"

// IsRealName reports whether name is a user-chosen display name rather than
// empty or the placeholder.
func IsRealName(name string) bool {
	return name != "" && !strings.EqualFold(name, PlaceholderName)
}

// Record is one stored profile
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// settings keys; persisted independently from the profile list
const (
	settingCollectionID = "collection_id"
	settingDefaultName  = "default_name"
)

// Store persists profiles and settings to a local SQLite database. All
// operations are synchronous and safe to call from both the frame-tick path
// and the voice-command path. "Record not found" is a valid, non-exceptional
// outcome everywhere.
type Store struct {
	db      *sql.DB
	logger  zerolog.Logger
	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates the store at the given path. A corrupted database
// file is set aside and replaced with a fresh empty store; losing profiles is
// acceptable, refusing to start is not.
func Open(dbPath string, logger zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	s := &Store{
		logger:  logger.With().Str("component", "profile-store").Logger(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	db, err := openAndMigrate(s, dbPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", dbPath).Msg("Profile store unreadable, starting empty")
		if renameErr := os.Rename(dbPath, dbPath+".corrupt"); renameErr != nil {
			return nil, fmt.Errorf("set aside corrupt db: %w", renameErr)
		}
		db, err = openAndMigrate(s, dbPath)
		if err != nil {
			return nil, fmt.Errorf("recreate db: %w", err)
		}
	}

	s.db = db
	return s, nil
}

func openAndMigrate(s *Store, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s.db = db
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT 'Unknown',
		first_seen_at TEXT NOT NULL,
		last_seen_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the profile for the given identity id, or nil if absent.
func (s *Store) Get(id string) *Record {
	row := s.db.QueryRow(
		`SELECT id, name, first_seen_at, last_seen_at FROM profiles WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn().Err(err).Str("id", id).Msg("Profile read failed")
		}
		return nil
	}
	return rec
}

// GetByName returns the first profile with the given name, case-insensitive,
// or nil if absent.
func (s *Store) GetByName(name string) *Record {
	row := s.db.QueryRow(
		`SELECT id, name, first_seen_at, last_seen_at FROM profiles
		 WHERE name = ? COLLATE NOCASE LIMIT 1`, name)

	rec, err := scanRecord(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn().Err(err).Str("name", name).Msg("Profile lookup failed")
		}
		return nil
	}
	return rec
}

// Upsert inserts the record or replaces the existing one with the same id.
func (s *Store) Upsert(rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("profile record requires an id")
	}
	if rec.Name == "" {
		rec.Name = PlaceholderName
	}

	_, err := s.db.Exec(
		`INSERT INTO profiles (id, name, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   last_seen_at = excluded.last_seen_at`,
		rec.ID, rec.Name,
		rec.FirstSeenAt.UTC().Format(time.RFC3339),
		rec.LastSeenAt.UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Warn().Err(err).Str("id", rec.ID).Msg("Profile write failed")
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Delete removes the profile with the given id. Returns false if no such
// profile existed.
func (s *Store) Delete(id string) bool {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("Profile delete failed")
		return false
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Str("id", id).Msg("Profile deleted")
	}
	return n > 0
}

// ListAll returns every stored profile. A corrupted or unreadable store
// degrades to an empty list, never an error.
func (s *Store) ListAll() []*Record {
	rows, err := s.db.Query(
		`SELECT id, name, first_seen_at, last_seen_at FROM profiles ORDER BY first_seen_at`)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Profile list failed, treating store as empty")
		return nil
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			// Skip corrupted rows rather than failing the whole load
			s.logger.Warn().Err(err).Msg("Skipping unreadable profile row")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// CollectionID returns the persisted collection id, or "" if unset.
func (s *Store) CollectionID() string {
	return s.getSetting(settingCollectionID)
}

// EnsureCollectionID returns the persisted collection id, generating and
// persisting a fresh one if unset.
func (s *Store) EnsureCollectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.getSetting(settingCollectionID); id != "" {
		return id
	}

	id := "browser_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String())
	s.setSetting(settingCollectionID, id)
	s.logger.Info().Str("collection", id).Msg("Generated collection id")
	return id
}

// ClearCollectionID removes the persisted collection id.
func (s *Store) ClearCollectionID() {
	s.clearSetting(settingCollectionID)
}

// DefaultName returns the browser-wide default display name, or "" if unset.
// The default name seeds profiles for newly indexed identities.
func (s *Store) DefaultName() string {
	return s.getSetting(settingDefaultName)
}

// SetDefaultName persists the browser-wide default display name.
func (s *Store) SetDefaultName(name string) {
	s.setSetting(settingDefaultName, name)
}

// ClearDefaultName removes the browser-wide default display name.
func (s *Store) ClearDefaultName() {
	s.clearSetting(settingDefaultName)
}

func (s *Store) getSetting(key string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn().Err(err).Str("key", key).Msg("Setting read failed")
		}
		return ""
	}
	return value
}

func (s *Store) setSetting(key, value string) {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Setting write failed")
	}
}

func (s *Store) clearSetting(key string) {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Setting clear failed")
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var firstSeen, lastSeen string

	if err := row.Scan(&rec.ID, &rec.Name, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}

	rec.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
	rec.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeen)
	return &rec, nil
}
