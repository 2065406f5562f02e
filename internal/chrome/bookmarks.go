package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const bookmarksFile = "Bookmarks"

// Roots in the order Chrome shows them.
var bookmarkRoots = []string{"bookmark_bar", "other", "synced"}

type bookmarkNode struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	URL       string         `json:"url"`
	DateAdded string         `json:"date_added"`
	Children  []bookmarkNode `json:"children"`
}

type bookmarksDocument struct {
	Roots map[string]bookmarkNode `json:"roots"`
}

// ExtractBookmarks flattens the Bookmarks tree of profile. The JSON file is
// read directly; Chrome rewrites it atomically so no copy is needed.
func (s *Service) ExtractBookmarks(ctx context.Context, profile Profile) Result[[]Bookmark] {
	started := time.Now()
	res := s.extractBookmarks(ctx, profile)
	if !res.Success {
		s.log.WithField("profile", profile.Dir()).WithField("error", res.Error).Warn("Bookmark extraction failed")
	}
	s.record("bookmarks", res.Success, len(res.Data), started)
	return res
}

func (s *Service) extractBookmarks(ctx context.Context, profile Profile) Result[[]Bookmark] {
	data, err := os.ReadFile(filepath.Join(profile.Path, bookmarksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return failed[[]Bookmark](fmt.Sprintf("Bookmarks file not found for profile %s", profile.Dir()))
		}
		return failed[[]Bookmark](fmt.Sprintf("failed to read bookmarks: %v", err))
	}

	var doc bookmarksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return failed[[]Bookmark](fmt.Sprintf("failed to parse bookmarks: %v", err))
	}

	bookmarks := make([]Bookmark, 0)
	for _, key := range bookmarkRoots {
		if ctx.Err() != nil {
			return failed[[]Bookmark](ctx.Err().Error())
		}
		root, ok := doc.Roots[key]
		if !ok {
			continue
		}
		walkBookmarks(root.Children, []string{root.Name}, &bookmarks)
	}
	return succeeded(bookmarks)
}

func walkBookmarks(nodes []bookmarkNode, folder []string, out *[]Bookmark) {
	for _, n := range nodes {
		switch n.Type {
		case "url":
			*out = append(*out, Bookmark{
				ID:        n.ID,
				Name:      n.Name,
				URL:       n.URL,
				Folder:    strings.Join(folder, "/"),
				DateAdded: chromeTime(parseChromeTimestamp(n.DateAdded)),
				Source:    SourceChrome,
			})
		case "folder":
			walkBookmarks(n.Children, append(folder[:len(folder):len(folder)], n.Name), out)
		}
	}
}

func parseChromeTimestamp(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
