// Package profile stores credentials imported into a Vibe profile. Passwords
// are sealed with the profile's key before they reach the database.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/vibebrowser/vibe-core/internal/chrome"
	"github.com/vibebrowser/vibe-core/internal/crypto"
	"github.com/vibebrowser/vibe-core/internal/logging"
)

// Credential is a stored login with the password already opened.
type Credential struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profileId"`
	URL          string     `json:"url"`
	Username     string     `json:"username"`
	Password     string     `json:"password"`
	Source       string     `json:"source"`
	DateCreated  time.Time  `json:"dateCreated"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	ImportedAt   time.Time  `json:"importedAt"`
}

// Store is the profile credential database.
type Store struct {
	db  *sql.DB
	enc *crypto.EncryptionService
	log logrus.FieldLogger
}

// migrations are applied in order; PRAGMA user_version records progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		id            TEXT PRIMARY KEY,
		profile_id    TEXT NOT NULL,
		url           TEXT NOT NULL,
		username      TEXT NOT NULL DEFAULT '',
		password_enc  TEXT NOT NULL,
		source        TEXT NOT NULL,
		date_created  INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER,
		imported_at   INTEGER NOT NULL,
		UNIQUE (profile_id, url, username)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_profile ON credentials (profile_id, url)`,
}

// Open opens (creating if needed) the store at path.
func Open(path string, enc *crypto.EncryptionService, logger logrus.FieldLogger) (*Store, error) {
	if enc == nil {
		return nil, errors.New("profile store requires an encryption service")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping profile database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure profile database: %w", err)
	}

	s := &Store{db: db, enc: enc, log: logging.WithComponent(logger, "profile-store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		s.log.WithError(err).Warn("Could not restrict profile database permissions")
	}
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		s.log.WithField("version", i+1).Debug("Running profile store migration")
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePasswords upserts records for profileID, keyed by (url, username), and
// returns how many rows were written.
func (s *Store) SavePasswords(ctx context.Context, profileID string, records []chrome.PasswordRecord) (int, error) {
	if profileID == "" {
		return 0, errors.New("profile ID is required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO credentials (id, profile_id, url, username, password_enc, source, date_created, last_modified, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, url, username) DO UPDATE SET
			password_enc  = excluded.password_enc,
			source        = excluded.source,
			date_created  = excluded.date_created,
			last_modified = excluded.last_modified,
			imported_at   = excluded.imported_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	saved := 0
	for _, rec := range records {
		sealed, err := s.enc.SealString(profileID, rec.Password)
		if err != nil {
			return 0, fmt.Errorf("failed to encrypt password for %s: %w", rec.URL, err)
		}

		var modified sql.NullInt64
		if rec.LastModified != nil {
			modified = sql.NullInt64{Int64: rec.LastModified.UnixMilli(), Valid: true}
		}
		source := rec.Source
		if source == "" {
			source = chrome.SourceChrome
		}

		if _, err := stmt.ExecContext(ctx, uuid.NewString(), profileID, rec.URL, rec.Username, sealed,
			source, unixMilli(rec.DateCreated), modified, now); err != nil {
			return 0, fmt.Errorf("failed to save credential for %s: %w", rec.URL, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit credentials: %w", err)
	}

	s.log.WithFields(logrus.Fields{"profile": profileID, "count": saved}).Info("Saved imported passwords")
	return saved, nil
}

// ListPasswords returns every credential of profileID ordered by URL.
func (s *Store) ListPasswords(ctx context.Context, profileID string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, username, password_enc, source, date_created, last_modified, imported_at
		FROM credentials
		WHERE profile_id = ?
		ORDER BY url, username`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	creds := make([]Credential, 0)
	for rows.Next() {
		var (
			c          Credential
			sealed     string
			created    int64
			modified   sql.NullInt64
			importedAt int64
		)
		if err := rows.Scan(&c.ID, &c.URL, &c.Username, &sealed, &c.Source, &created, &modified, &importedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}

		password, err := s.enc.OpenString(profileID, sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential %s: %w", c.ID, err)
		}

		c.ProfileID = profileID
		c.Password = password
		c.DateCreated = fromUnixMilli(created)
		c.ImportedAt = fromUnixMilli(importedAt)
		if modified.Valid {
			t := fromUnixMilli(modified.Int64)
			c.LastModified = &t
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
