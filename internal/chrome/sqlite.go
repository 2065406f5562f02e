package chrome

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Temp copy name prefixes. A uuid suffix keeps concurrent calls against the
// same profile from sharing a file.
const (
	loginDataCopyPrefix = "chrome_login_data_"
	historyCopyPrefix   = "chrome_history_"
	copySuffix          = ".db"
)

// chromeEpochOffsetMs is the distance between 1601-01-01 and 1970-01-01 in ms.
const chromeEpochOffsetMs = 11644473600000

// chromeTime converts a WebKit timestamp (microseconds since 1601) to time.
// Zero and negative values mean "unset".
func chromeTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v/1000 - chromeEpochOffsetMs).UTC()
}

// copyToTemp copies src into the temp dir and returns the copy's path. The
// caller owns the copy and must remove it.
func (s *Service) copyToTemp(src, prefix string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	dst := filepath.Join(s.tempDir, prefix+uuid.NewString()+copySuffix)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to finish temp copy: %w", err)
	}
	return dst, nil
}

func (s *Service) removeCopy(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("path", path).Warn("Failed to remove temp database copy")
	}
}

// openReadOnly opens a SQLite file in read-only mode.
func openReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + filepath.ToSlash(path) + "?mode=ro"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// tableColumns lists the column names of table.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	return cols, nil
}

// SweepTempCopies removes database copies older than olderThan left behind by
// a process that died mid-extraction. It returns the number removed.
func (s *Service) SweepTempCopies(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isTempCopyName(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.tempDir, name)); err != nil {
			s.log.WithError(err).WithField("file", name).Warn("Failed to sweep temp copy")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Info("Swept orphaned Chrome database copies")
	}
	return removed, nil
}

func isTempCopyName(name string) bool {
	if !strings.HasSuffix(name, copySuffix) {
		return false
	}
	for _, prefix := range []string{loginDataCopyPrefix, historyCopyPrefix} {
		if strings.HasPrefix(name, prefix) {
			_, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(name, prefix), copySuffix))
			return err == nil
		}
	}
	return false
}
