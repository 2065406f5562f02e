package chrome

import (
	"context"
	"sync"
)

// ExtractAll runs the password, bookmark and history extractions
// concurrently. A failed part contributes an empty slice and a warning; the
// aggregate itself always succeeds.
func (s *Service) ExtractAll(ctx context.Context, profile Profile) Result[AllData] {
	var (
		wg        sync.WaitGroup
		passwords Result[[]PasswordRecord]
		bookmarks Result[[]Bookmark]
		history   Result[[]HistoryEntry]
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		passwords = s.ExtractPasswords(ctx, profile)
	}()
	go func() {
		defer wg.Done()
		bookmarks = s.ExtractBookmarks(ctx, profile)
	}()
	go func() {
		defer wg.Done()
		history = s.ExtractHistory(ctx, profile)
	}()
	wg.Wait()

	data := AllData{
		Passwords: []PasswordRecord{},
		Bookmarks: []Bookmark{},
		History:   []HistoryEntry{},
	}
	if passwords.Success && passwords.Data != nil {
		data.Passwords = passwords.Data
	} else if !passwords.Success {
		data.Warnings = append(data.Warnings, "passwords: "+passwords.Error)
	}
	if bookmarks.Success && bookmarks.Data != nil {
		data.Bookmarks = bookmarks.Data
	} else if !bookmarks.Success {
		data.Warnings = append(data.Warnings, "bookmarks: "+bookmarks.Error)
	}
	if history.Success && history.Data != nil {
		data.History = history.Data
	} else if !history.Success {
		data.Warnings = append(data.Warnings, "history: "+history.Error)
	}

	return succeeded(data)
}
