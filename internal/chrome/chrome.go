// Package chrome reads a local Google Chrome installation: it enumerates
// profiles and extracts saved passwords, bookmarks and history.
//
// Chrome's files are never written. SQLite databases are copied to the temp
// directory first because a running browser holds a lock on them, and every
// copy is removed before the extraction call returns.
package chrome

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

// SourceChrome tags every record produced by this package.
const SourceChrome = "chrome"

// Result is the outcome of one extraction call. Success is authoritative:
// Data is meaningful only when it is true, Error only when it is false.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// MarshalJSON leaves data out of failed results.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Data    T    `json:"data"`
		}{true, r.Data})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}{false, r.Error})
}

func succeeded[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func failed[T any](msg string) Result[T] {
	return Result[T]{Success: false, Error: msg}
}

// Profile is a Chrome profile directory.
type Profile struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// Dir returns the profile's directory name ("Default", "Profile 1", ...).
func (p Profile) Dir() string {
	return baseName(p.Path)
}

// PasswordRecord is one decrypted login. Password is plaintext and must not
// be persisted as is.
type PasswordRecord struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Username     string     `json:"username"`
	Password     string     `json:"password"`
	Source       string     `json:"source"`
	DateCreated  time.Time  `json:"dateCreated"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// Bookmark is one URL node of the Bookmarks tree.
type Bookmark struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Folder    string    `json:"folder"`
	DateAdded time.Time `json:"dateAdded"`
	Source    string    `json:"source"`
}

// HistoryEntry is one row of the urls table.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	VisitCount int       `json:"visitCount"`
	LastVisit  time.Time `json:"lastVisit"`
	Source     string    `json:"source"`
}

// AllData aggregates the three extractions. The slices are never nil.
type AllData struct {
	Passwords []PasswordRecord `json:"passwords"`
	Bookmarks []Bookmark       `json:"bookmarks"`
	History   []HistoryEntry   `json:"history"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// Recorder observes finished extractions. The metrics package implements it.
type Recorder interface {
	ExtractionFinished(kind string, success bool, records int, elapsed time.Duration)
}

// Options configures a Service. Zero values pick the platform defaults.
type Options struct {
	// UserDataDir overrides the per-OS Chrome configuration directory.
	UserDataDir string
	// TempDir receives the temporary database copies.
	TempDir string
	// Keys supplies the password decryption key.
	Keys KeyProvider
	// KeyCacheTTL bounds how long a derived key is reused. Zero disables caching.
	KeyCacheTTL time.Duration
	Logger      logrus.FieldLogger
	Recorder    Recorder
}

// Service extracts data from a Chrome installation. It holds no per-call
// state, so concurrent calls are safe, including against the same profile.
type Service struct {
	userDataDir string
	tempDir     string
	keys        KeyProvider
	keyCache    *cache.Cache
	keyTTL      time.Duration
	keyMu       sync.Mutex
	log         logrus.FieldLogger
	recorder    Recorder
}

const keyCacheKey = "chrome-safe-storage"

// NewService creates an extraction service.
func NewService(opts Options) *Service {
	s := &Service{
		userDataDir: opts.UserDataDir,
		tempDir:     opts.TempDir,
		keys:        opts.Keys,
		keyTTL:      opts.KeyCacheTTL,
		log:         logging.WithComponent(opts.Logger, "chrome"),
		recorder:    opts.Recorder,
	}
	if s.userDataDir == "" {
		s.userDataDir = ConfigDir()
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	if s.keys == nil {
		s.keys = DefaultKeyProvider()
	}
	if s.keyTTL > 0 {
		s.keyCache = cache.New(s.keyTTL, 2*s.keyTTL)
	}
	return s
}

// UserDataDir returns the Chrome configuration directory in use.
func (s *Service) UserDataDir() string {
	return s.userDataDir
}

// key returns the decryption key, consulting the cache first so the OS
// keychain is not queried for every call.
func (s *Service) key(ctx context.Context) ([]byte, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if s.keyCache != nil {
		if v, found := s.keyCache.Get(keyCacheKey); found {
			return v.([]byte), nil
		}
	}

	key, err := s.keys.Key(ctx)
	if err != nil {
		return nil, err
	}

	if s.keyCache != nil {
		s.keyCache.Set(keyCacheKey, key, cache.DefaultExpiration)
	}
	return key, nil
}

// ForgetKey drops a cached decryption key.
func (s *Service) ForgetKey() {
	if s.keyCache != nil {
		s.keyCache.Delete(keyCacheKey)
	}
}

func (s *Service) record(kind string, success bool, records int, started time.Time) {
	if s.recorder != nil {
		s.recorder.ExtractionFinished(kind, success, records, time.Since(started))
	}
}
