// Package credentials keeps the Jira email/token pair used by the desk.
//
// Two scopes exist: a session scope that lives until the machine's runtime
// directory is cleared, and a durable scope in the user's config directory.
// A session value always wins over the durable one.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

const filePerms = 0o600

var (
	// ErrMissing is returned when email or token are empty.
	ErrMissing = errors.New("credentials: email and token are required")
	// ErrInvalidEmail is returned when the email has no "@".
	ErrInvalidEmail = errors.New("credentials: invalid email")
)

// Credentials is an email/token pair for Jira basic auth.
type Credentials struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Email) != "" && strings.TrimSpace(c.Token) != ""
}

// Store persists one credential pair.
type Store interface {
	Get() (Credentials, bool)
	Set(email, token string, persist bool) error
	Clear() error
}

// FileStore implements Store with two JSON files.
type FileStore struct {
	mu          sync.RWMutex
	sessionPath string
	durablePath string
}

// NewFileStore returns a store backed by sessionPath and durablePath.
// An empty path disables that scope.
func NewFileStore(sessionPath, durablePath string) *FileStore {
	return &FileStore{sessionPath: sessionPath, durablePath: durablePath}
}

// DefaultPaths returns the session and durable file locations for the current user.
func DefaultPaths() (session string, durable string) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), fmt.Sprintf("jsd-%d", os.Getuid()))
	}
	session = filepath.Join(runtimeDir, "jsd", "session.json")

	if configDir, err := os.UserConfigDir(); err == nil {
		durable = filepath.Join(configDir, "jsd", "credentials.json")
	}
	return session, durable
}

// Get returns the session credentials, falling back to the durable file.
func (s *FileStore) Get() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, path := range []string{s.sessionPath, s.durablePath} {
		if path == "" {
			continue
		}
		creds, err := readFile(path)
		if err != nil || !creds.Valid() {
			continue
		}
		return creds, true
	}
	return Credentials{}, false
}

// Set validates and stores credentials. persist=true writes the durable file
// as well as the session one.
func (s *FileStore) Set(email, token string, persist bool) error {
	creds := Credentials{Email: strings.TrimSpace(email), Token: strings.TrimSpace(token)}
	if err := Validate(creds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(s.sessionPath, creds); err != nil {
		return err
	}
	if persist {
		return writeFile(s.durablePath, creds)
	}
	return nil
}

// Clear removes both scopes.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, path := range []string{s.sessionPath, s.durablePath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("credentials: remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the rules the login form enforces.
func Validate(creds Credentials) error {
	if !creds.Valid() {
		return ErrMissing
	}
	if !strings.Contains(creds.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// readFile parses a credentials file. Comments and trailing commas are
// accepted so the file can be edited by hand.
func readFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials: invalid JSONC in %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(standardized, &creds); err != nil {
		return Credentials{}, fmt.Errorf("credentials: invalid JSON in %s: %w", path, err)
	}
	return creds, nil
}

func writeFile(path string, creds Credentials) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("credentials: create directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("credentials: write %s: %w", path, err)
	}
	// atomic.WriteFile does not set permissions on new files
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("credentials: chmod %s: %w", path, err)
	}
	return nil
}

// MemoryStore keeps credentials in process memory only; persist is ignored.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.creds.Valid()
}

func (s *MemoryStore) Set(email, token string, _ bool) error {
	creds := Credentials{Email: strings.TrimSpace(email), Token: strings.TrimSpace(token)}
	if err := Validate(creds); err != nil {
		return err
	}
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()
	return nil
}
