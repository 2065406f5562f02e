package profile

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vibebrowser/vibe-core/internal/chrome"
	"github.com/vibebrowser/vibe-core/internal/crypto"
	"github.com/vibebrowser/vibe-core/internal/logging"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	enc, err := crypto.NewEncryptionService(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "profile.db")
	store, err := Open(path, enc, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSaveAndListPasswords(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	modified := created.Add(48 * time.Hour)
	records := []chrome.PasswordRecord{
		{URL: "https://example.com", Username: "bob", Password: "hunter2", Source: chrome.SourceChrome, DateCreated: created, LastModified: &modified},
		{URL: "https://a.example", Username: "", Password: "", DateCreated: created},
	}

	n, err := store.SavePasswords(ctx, "work", records)
	if err != nil {
		t.Fatalf("SavePasswords failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 saved, got %d", n)
	}

	creds, err := store.ListPasswords(ctx, "work")
	if err != nil {
		t.Fatalf("ListPasswords failed: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}

	if creds[0].URL != "https://a.example" || creds[0].Source != chrome.SourceChrome || creds[0].LastModified != nil {
		t.Errorf("unexpected first credential: %+v", creds[0])
	}
	bob := creds[1]
	if bob.Username != "bob" || bob.Password != "hunter2" || bob.ProfileID != "work" {
		t.Errorf("unexpected credential: %+v", bob)
	}
	if !bob.DateCreated.Equal(created) || bob.LastModified == nil || !bob.LastModified.Equal(modified) {
		t.Errorf("timestamps not preserved: %+v", bob)
	}
	if bob.ImportedAt.IsZero() {
		t.Error("expected import time to be set")
	}

	other, err := store.ListPasswords(ctx, "personal")
	if err != nil {
		t.Fatal(err)
	}
	if other == nil || len(other) != 0 {
		t.Errorf("expected empty list for another profile, got %#v", other)
	}
}

func TestSavePasswordsUpserts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first := []chrome.PasswordRecord{{URL: "https://example.com", Username: "bob", Password: "old"}}
	if _, err := store.SavePasswords(ctx, "work", first); err != nil {
		t.Fatal(err)
	}
	before, _ := store.ListPasswords(ctx, "work")

	second := []chrome.PasswordRecord{{URL: "https://example.com", Username: "bob", Password: "new"}}
	if _, err := store.SavePasswords(ctx, "work", second); err != nil {
		t.Fatal(err)
	}

	after, err := store.ListPasswords(ctx, "work")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", len(after))
	}
	if after[0].Password != "new" {
		t.Errorf("expected updated password, got %q", after[0].Password)
	}
	if after[0].ID != before[0].ID {
		t.Error("expected upsert to keep the original id")
	}
}

func TestPasswordsEncryptedAtRest(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	if _, err := store.SavePasswords(ctx, "work", []chrome.PasswordRecord{
		{URL: "https://example.com", Username: "bob", Password: "correct horse battery staple"},
	}); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var stored string
	if err := db.QueryRow(`SELECT password_enc FROM credentials`).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "" || strings.Contains(stored, "correct horse") {
		t.Errorf("password stored in plaintext: %q", stored)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}
}

func TestReopenKeepsData(t *testing.T) {
	enc, _ := crypto.NewEncryptionService(testMasterKey)
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	store, err := Open(path, enc, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SavePasswords(ctx, "p", []chrome.PasswordRecord{{URL: "https://x.example", Password: "pw"}}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = Open(path, enc, logging.Discard())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	creds, err := store.ListPasswords(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 1 || creds[0].Password != "pw" {
		t.Errorf("unexpected credentials after reopen: %+v", creds)
	}
}

func TestSavePasswordsValidation(t *testing.T) {
	store, _ := openTestStore(t)

	if _, err := store.SavePasswords(context.Background(), "", []chrome.PasswordRecord{{URL: "u"}}); err == nil {
		t.Error("expected error for empty profile id")
	}
	n, err := store.SavePasswords(context.Background(), "p", nil)
	if err != nil || n != 0 {
		t.Errorf("expected no-op for empty input, got %d, %v", n, err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "x.db"), nil, nil); err == nil {
		t.Error("expected error without encryption service")
	}
}
