package chrome

import (
	"context"
	"testing"
	"time"
)

func TestExtractBookmarksWalksTree(t *testing.T) {
	f := newFixture(t)
	f.writeBookmarks(t, map[string]interface{}{
		"version": 1,
		"roots": map[string]interface{}{
			"bookmark_bar": map[string]interface{}{
				"name": "Bookmarks bar",
				"type": "folder",
				"children": []interface{}{
					map[string]interface{}{"id": "1", "name": "Go", "type": "url", "url": "https://go.dev", "date_added": "13348540800000000"},
					map[string]interface{}{
						"name": "Dev",
						"type": "folder",
						"children": []interface{}{
							map[string]interface{}{
								"name": "Docs",
								"type": "folder",
								"children": []interface{}{
									map[string]interface{}{"id": "2", "name": "pkg", "type": "url", "url": "https://pkg.go.dev"},
								},
							},
							map[string]interface{}{"id": "3", "name": "GitHub", "type": "url", "url": "https://github.com"},
						},
					},
				},
			},
			"other": map[string]interface{}{
				"name":     "Other bookmarks",
				"type":     "folder",
				"children": []interface{}{map[string]interface{}{"id": "4", "name": "News", "type": "url", "url": "https://news.example"}},
			},
			"synced": map[string]interface{}{"name": "Mobile bookmarks", "type": "folder"},
		},
	})

	res := f.service(nil).ExtractBookmarks(context.Background(), f.profile)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}

	want := []struct{ id, url, folder string }{
		{"1", "https://go.dev", "Bookmarks bar"},
		{"2", "https://pkg.go.dev", "Bookmarks bar/Dev/Docs"},
		{"3", "https://github.com", "Bookmarks bar/Dev"},
		{"4", "https://news.example", "Other bookmarks"},
	}
	if len(res.Data) != len(want) {
		t.Fatalf("expected %d bookmarks, got %d: %+v", len(want), len(res.Data), res.Data)
	}
	for i, w := range want {
		b := res.Data[i]
		if b.ID != w.id || b.URL != w.url || b.Folder != w.folder || b.Source != SourceChrome {
			t.Errorf("bookmark %d: expected %+v, got %+v", i, w, b)
		}
	}
	if !res.Data[0].DateAdded.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date_added conversion: %s", res.Data[0].DateAdded)
	}
	if !res.Data[1].DateAdded.IsZero() {
		t.Errorf("expected zero date for missing date_added, got %s", res.Data[1].DateAdded)
	}
}

func TestExtractBookmarksErrors(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)

	res := svc.ExtractBookmarks(context.Background(), f.profile)
	if res.Success || res.Error != "Bookmarks file not found for profile Default" {
		t.Errorf("expected missing-file failure, got %+v", res)
	}

	if err := writeFile(f.profile.Path, bookmarksFile, "{broken"); err != nil {
		t.Fatal(err)
	}
	res = svc.ExtractBookmarks(context.Background(), f.profile)
	if res.Success {
		t.Error("expected failure for malformed bookmarks")
	}
}

func TestExtractBookmarksEmpty(t *testing.T) {
	f := newFixture(t)
	f.writeBookmarks(t, map[string]interface{}{"roots": map[string]interface{}{}})

	res := f.service(nil).ExtractBookmarks(context.Background(), f.profile)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", res.Data)
	}
}
