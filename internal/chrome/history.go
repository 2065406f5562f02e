package chrome

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

const (
	historyFile = "History"
	// HistoryLimit caps the rows returned, most recent first.
	HistoryLimit = 1000
)

// ExtractHistory returns the most recently visited URLs of profile.
func (s *Service) ExtractHistory(ctx context.Context, profile Profile) Result[[]HistoryEntry] {
	started := time.Now()
	res := s.extractHistory(ctx, profile)
	if !res.Success {
		s.log.WithField("profile", profile.Dir()).WithField("error", res.Error).Warn("History extraction failed")
	}
	s.record("history", res.Success, len(res.Data), started)
	return res
}

func (s *Service) extractHistory(ctx context.Context, profile Profile) Result[[]HistoryEntry] {
	src := filepath.Join(profile.Path, historyFile)
	if !fileExists(src) {
		return failed[[]HistoryEntry](fmt.Sprintf("History file not found for profile %s", profile.Dir()))
	}

	tmp, err := s.copyToTemp(src, historyCopyPrefix)
	if err != nil {
		return failed[[]HistoryEntry](err.Error())
	}
	defer s.removeCopy(tmp)

	entries, err := readHistory(ctx, tmp, HistoryLimit)
	if err != nil {
		return failed[[]HistoryEntry](fmt.Sprintf("failed to read history: %v", err))
	}
	return succeeded(entries)
}

func readHistory(ctx context.Context, path string, limit int) ([]HistoryEntry, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, url, COALESCE(title, ''), COALESCE(visit_count, 0), last_visit_time
		FROM urls
		WHERE last_visit_time > 0
		ORDER BY last_visit_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e         HistoryEntry
			lastVisit int64
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Title, &e.VisitCount, &lastVisit); err != nil {
			return nil, err
		}
		e.LastVisit = chromeTime(lastVisit)
		e.Source = SourceChrome
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
