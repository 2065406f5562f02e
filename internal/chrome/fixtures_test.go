package chrome

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

var testKey = DeriveKey("test-passphrase", 1003)

// encryptV10 produces a blob the way Chrome does on macOS/Linux.
func encryptV10(t *testing.T, plaintext string, key []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, cbcIV).CryptBlocks(out, padded)
	return append([]byte("v10"), out...)
}

// encryptRawV10 encrypts block-aligned data without adding padding.
func encryptRawV10(t *testing.T, data []byte, key []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, cbcIV).CryptBlocks(out, data)
	return append([]byte("v10"), out...)
}

type loginFixture struct {
	url         string
	username    string
	password    []byte
	created     int64
	modified    int64
	blacklisted bool
}

type fixture struct {
	root    string
	tempDir string
	profile Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	profileDir := filepath.Join(root, "Default")
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		root:    root,
		tempDir: t.TempDir(),
		profile: Profile{Path: profileDir, Name: "Person 1", IsDefault: true},
	}
}

func (f *fixture) service(keys KeyProvider) *Service {
	return NewService(Options{
		UserDataDir: f.root,
		TempDir:     f.tempDir,
		Keys:        keys,
		Logger:      logging.Discard(),
	})
}

func staticKey(key []byte) KeyProvider {
	return KeyFunc(func(context.Context) ([]byte, error) { return key, nil })
}

func (f *fixture) writeLoginData(t *testing.T, logins []loginFixture) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(f.profile.Path, loginDataFile))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE logins (
		origin_url VARCHAR NOT NULL,
		action_url VARCHAR,
		username_value VARCHAR,
		password_value BLOB,
		date_created INTEGER NOT NULL DEFAULT 0,
		blacklisted_by_user INTEGER NOT NULL DEFAULT 0,
		date_password_modified INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		t.Fatalf("create logins: %v", err)
	}

	for _, l := range logins {
		blacklisted := 0
		if l.blacklisted {
			blacklisted = 1
		}
		_, err := db.Exec(`INSERT INTO logins (origin_url, username_value, password_value, date_created, blacklisted_by_user, date_password_modified)
			VALUES (?, ?, ?, ?, ?, ?)`, l.url, l.username, l.password, l.created, blacklisted, l.modified)
		if err != nil {
			t.Fatalf("insert login: %v", err)
		}
	}
}

type historyFixture struct {
	url       string
	title     string
	visits    int
	lastVisit int64
}

func (f *fixture) writeHistory(t *testing.T, rows []historyFixture) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(f.profile.Path, historyFile))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url LONGVARCHAR,
		title LONGVARCHAR,
		visit_count INTEGER DEFAULT 0 NOT NULL,
		last_visit_time INTEGER NOT NULL
	)`); err != nil {
		t.Fatalf("create urls: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO urls (url, title, visit_count, last_visit_time) VALUES (?, ?, ?, ?)`,
			r.url, r.title, r.visits, r.lastVisit); err != nil {
			t.Fatalf("insert url: %v", err)
		}
	}
}

func (f *fixture) writeBookmarks(t *testing.T, doc interface{}) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.profile.Path, bookmarksFile), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) writeLocalState(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.root, localStateFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// assertNoTempCopies fails if any database copy is left in the temp dir.
func (f *fixture) assertNoTempCopies(t *testing.T) {
	t.Helper()
	for _, pattern := range []string{"chrome_login_data_*.db", "chrome_history_*.db"} {
		matches, err := filepath.Glob(filepath.Join(f.tempDir, pattern))
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) > 0 {
			t.Errorf("leftover temp copies: %v", matches)
		}
	}
}
