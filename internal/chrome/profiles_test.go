package chrome

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfilesFromLocalState(t *testing.T) {
	f := newFixture(t)
	f.writeLocalState(t, `{
		"profile": {
			"info_cache": {
				"Profile 2": {"name": "Work"},
				"Default": {"name": "Personal"},
				"Profile 1": {"name": ""}
			}
		}
	}`)

	profiles, err := f.service(nil).Profiles()
	if err != nil {
		t.Fatalf("Profiles failed: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(profiles))
	}

	want := []struct {
		dir, name string
		isDefault bool
	}{
		{"Default", "Personal", true},
		{"Profile 1", "Profile 1", false},
		{"Profile 2", "Work", false},
	}
	for i, w := range want {
		p := profiles[i]
		if p.Dir() != w.dir || p.Name != w.name || p.IsDefault != w.isDefault {
			t.Errorf("profile %d: expected %+v, got %+v", i, w, p)
		}
		if p.Path != filepath.Join(f.root, w.dir) {
			t.Errorf("profile %d: unexpected path %s", i, p.Path)
		}
	}
}

func TestProfilesFallbackToDefault(t *testing.T) {
	tests := []struct {
		name       string
		localState string
	}{
		{"missing Local State", ""},
		{"malformed Local State", "{not json"},
		{"empty info cache", `{"profile": {"info_cache": {}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.localState != "" {
				f.writeLocalState(t, tt.localState)
			}

			profiles, err := f.service(nil).Profiles()
			if err != nil {
				t.Fatalf("Profiles failed: %v", err)
			}
			if len(profiles) != 1 || profiles[0].Dir() != "Default" || !profiles[0].IsDefault {
				t.Errorf("expected single Default profile, got %+v", profiles)
			}
		})
	}
}

func TestProfilesNoneFound(t *testing.T) {
	root := t.TempDir()
	svc := NewService(Options{UserDataDir: root, TempDir: t.TempDir()})

	if _, err := svc.Profiles(); err == nil {
		t.Fatal("expected error when no profile directory exists")
	}

	if err := os.MkdirAll(filepath.Join(root, "Default"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Profiles(); err != nil {
		t.Errorf("expected profiles to be recomputed on each call: %v", err)
	}
}

func TestResolveProfile(t *testing.T) {
	f := newFixture(t)
	f.writeLocalState(t, `{"profile": {"info_cache": {"Default": {"name": "Personal"}, "Profile 1": {"name": "Work"}}}}`)
	svc := f.service(nil)

	tests := []struct {
		query   string
		wantDir string
		wantErr bool
	}{
		{"", "Default", false},
		{"Profile 1", "Profile 1", false},
		{"Work", "Profile 1", false},
		{"Personal", "Default", false},
		{"Nobody", "", true},
	}
	for _, tt := range tests {
		p, err := svc.ResolveProfile(tt.query)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveProfile(%q): expected error", tt.query)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveProfile(%q): %v", tt.query, err)
			continue
		}
		if p.Dir() != tt.wantDir {
			t.Errorf("ResolveProfile(%q): expected %s, got %s", tt.query, tt.wantDir, p.Dir())
		}
	}
}
