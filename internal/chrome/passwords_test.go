package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

func TestExtractPasswordsDecryptsV10(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{
		{
			url:      "https://example.com",
			username: "bob",
			password: encryptV10(t, "hunter2", testKey),
			created:  13348540800000000,
			modified: 13348540800000000,
		},
	})

	res := f.service(staticKey(testKey)).ExtractPasswords(context.Background(), f.profile)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if len(res.Data) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Data))
	}

	rec := res.Data[0]
	if rec.URL != "https://example.com" || rec.Username != "bob" || rec.Password != "hunter2" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Source != SourceChrome {
		t.Errorf("expected source %q, got %q", SourceChrome, rec.Source)
	}
	if rec.ID == "" {
		t.Error("expected a generated id")
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rec.DateCreated.Equal(want) {
		t.Errorf("expected dateCreated %s, got %s", want, rec.DateCreated)
	}
	if rec.LastModified == nil || !rec.LastModified.Equal(want) {
		t.Errorf("expected lastModified %s, got %v", want, rec.LastModified)
	}

	f.assertNoTempCopies(t)
}

func TestExtractPasswordsEmptyTable(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, nil)

	res := f.service(staticKey(testKey)).ExtractPasswords(context.Background(), f.profile)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", res.Data)
	}

	encoded, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(encoded), `"data":[]`) {
		t.Errorf("expected data to encode as an empty array, got %s", encoded)
	}
	f.assertNoTempCopies(t)
}

func TestExtractPasswordsSkipsBadRows(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{
		{url: "https://a.example", username: "alice", password: encryptV10(t, "good", testKey)},
		{url: "https://b.example", username: "broken", password: []byte("v10notblockaligned")},
		{url: "https://c.example", username: "legacy", password: []byte("plaintext-pass")},
		{url: "https://d.example", username: "never", password: encryptV10(t, "x", testKey), blacklisted: true},
		{url: "https://e.example", username: "newer", password: []byte("v11whatever-goes-here")},
	})

	res := f.service(staticKey(testKey)).ExtractPasswords(context.Background(), f.profile)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}

	got := make(map[string]string)
	for _, r := range res.Data {
		got[r.Username] = r.Password
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(got), got)
	}
	if got["alice"] != "good" {
		t.Errorf("expected alice's password to decrypt, got %q", got["alice"])
	}
	if got["legacy"] != "plaintext-pass" {
		t.Errorf("expected legacy password passed through, got %q", got["legacy"])
	}
	if got["newer"] != "v11whatever-goes-here" {
		t.Errorf("expected unmarked blob passed through as is, got %q", got["newer"])
	}
	if res.Data[0].LastModified != nil {
		t.Error("expected nil lastModified for an unset timestamp")
	}
	f.assertNoTempCopies(t)
}

func TestExtractPasswordsDropsKeyThatDecryptsNothing(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{
		{url: "https://a.example", username: "alice", password: encryptV10(t, "good", testKey)},
	})

	keys := [][]byte{[]byte("short"), testKey}
	calls := 0
	svc := NewService(Options{
		UserDataDir: f.root,
		TempDir:     f.tempDir,
		KeyCacheTTL: time.Minute,
		Logger:      logging.Discard(),
		Keys: KeyFunc(func(context.Context) ([]byte, error) {
			key := keys[calls]
			calls++
			return key, nil
		}),
	})

	res := svc.ExtractPasswords(context.Background(), f.profile)
	if !res.Success || len(res.Data) != 0 {
		t.Fatalf("expected success with no records, got %+v", res)
	}

	res = svc.ExtractPasswords(context.Background(), f.profile)
	if len(res.Data) != 1 || res.Data[0].Password != "good" {
		t.Fatalf("expected the second call to fetch a fresh key, got %+v", res)
	}
	if calls != 2 {
		t.Errorf("expected two key lookups, got %d", calls)
	}
	f.assertNoTempCopies(t)
}

func TestExtractPasswordsMissingFile(t *testing.T) {
	f := newFixture(t)

	res := f.service(staticKey(testKey)).ExtractPasswords(context.Background(), f.profile)
	if res.Success {
		t.Fatal("expected failure when Login Data is missing")
	}
	if res.Error != "Login Data file not found for profile Default" {
		t.Errorf("unexpected error: %q", res.Error)
	}

	encoded, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"success":false,"error":"Login Data file not found for profile Default"}`; string(encoded) != want {
		t.Errorf("expected %s, got %s", want, encoded)
	}
}

func TestExtractPasswordsKeyUnavailable(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{{url: "https://example.com", password: encryptV10(t, "x", testKey)}})

	keys := KeyFunc(func(context.Context) ([]byte, error) {
		return nil, fmt.Errorf("keychain locked: %w", ErrKeyUnavailable)
	})
	res := f.service(keys).ExtractPasswords(context.Background(), f.profile)
	if res.Success {
		t.Fatal("expected failure without a key")
	}
	if res.Error != "failed to retrieve encryption key" {
		t.Errorf("unexpected error: %q", res.Error)
	}
	f.assertNoTempCopies(t)

	res = f.service(keyProviderFor("windows")).ExtractPasswords(context.Background(), f.profile)
	if res.Success {
		t.Error("expected failure on a platform without key support")
	}
}

func TestExtractPasswordsCorruptDatabase(t *testing.T) {
	f := newFixture(t)
	if err := writeFile(f.profile.Path, loginDataFile, "this is not a sqlite database at all"); err != nil {
		t.Fatal(err)
	}

	res := f.service(staticKey(testKey)).ExtractPasswords(context.Background(), f.profile)
	if res.Success {
		t.Fatal("expected failure for a corrupt database")
	}
	f.assertNoTempCopies(t)
}

func TestExtractPasswordsConcurrentSameProfile(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{
		{url: "https://example.com", username: "bob", password: encryptV10(t, "hunter2", testKey)},
	})
	svc := f.service(staticKey(testKey))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.ExtractPasswords(context.Background(), f.profile)
			if !res.Success {
				errs <- errors.New(res.Error)
				return
			}
			if len(res.Data) != 1 || res.Data[0].Password != "hunter2" {
				errs <- fmt.Errorf("unexpected data: %+v", res.Data)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	f.assertNoTempCopies(t)
}

type recordedExtraction struct {
	kind    string
	success bool
	records int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedExtraction
}

func (r *fakeRecorder) ExtractionFinished(kind string, success bool, records int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedExtraction{kind, success, records})
}

func TestExtractPasswordsReportsToRecorder(t *testing.T) {
	f := newFixture(t)
	f.writeLoginData(t, []loginFixture{
		{url: "https://example.com", username: "bob", password: encryptV10(t, "hunter2", testKey)},
	})
	rec := &fakeRecorder{}
	svc := NewService(Options{UserDataDir: f.root, TempDir: f.tempDir, Keys: staticKey(testKey), Recorder: rec})

	svc.ExtractPasswords(context.Background(), f.profile)

	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 recorded extraction, got %d", len(rec.calls))
	}
	if got := rec.calls[0]; got != (recordedExtraction{"passwords", true, 1}) {
		t.Errorf("unexpected recording: %+v", got)
	}
}
