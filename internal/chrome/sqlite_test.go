package chrome

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)
}

func TestSweepTempCopies(t *testing.T) {
	f := newFixture(t)
	svc := f.service(staticKey(testKey))

	old := loginDataCopyPrefix + uuid.NewString() + copySuffix
	oldHistory := historyCopyPrefix + uuid.NewString() + copySuffix
	fresh := loginDataCopyPrefix + uuid.NewString() + copySuffix
	unrelated := loginDataCopyPrefix + "not-a-uuid" + copySuffix

	for _, name := range []string{old, oldHistory, fresh, unrelated, "keep.db"} {
		if err := writeFile(f.tempDir, name, "x"); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{old, oldHistory, unrelated, "keep.db"} {
		if err := os.Chtimes(filepath.Join(f.tempDir, name), past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := svc.SweepTempCopies(time.Hour)
	if err != nil {
		t.Fatalf("SweepTempCopies failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	for _, name := range []string{fresh, unrelated, "keep.db"} {
		if _, err := os.Stat(filepath.Join(f.tempDir, name)); err != nil {
			t.Errorf("expected %s to survive: %v", name, err)
		}
	}
	for _, name := range []string{old, oldHistory} {
		if _, err := os.Stat(filepath.Join(f.tempDir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", name)
		}
	}
}

func TestCopyToTempUniqueNames(t *testing.T) {
	f := newFixture(t)
	svc := f.service(staticKey(testKey))
	src := filepath.Join(f.profile.Path, "src.db")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	a, err := svc.copyToTemp(src, loginDataCopyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.copyToTemp(src, loginDataCopyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct temp copy paths")
	}
	if !isTempCopyName(filepath.Base(a)) {
		t.Errorf("unexpected copy name %s", filepath.Base(a))
	}

	info, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}

	svc.removeCopy(a)
	svc.removeCopy(b)
	f.assertNoTempCopies(t)
}
