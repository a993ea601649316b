package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenKey is the fixed key the session credential is stored under.
const TokenKey = "token"

// CredentialStore persists the single session credential on the client.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// credentialsFile represents the top-level structure of credentials.yaml.
type credentialsFile struct {
	Version string            `yaml:"version"`
	Values  map[string]string `yaml:"values"`
}

type fileCredentialStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileCredentialStore creates a CredentialStore backed by a
// credentials.yaml file in the given base directory.
func NewFileCredentialStore(basePath string) CredentialStore {
	return &fileCredentialStore{basePath: basePath}
}

func (s *fileCredentialStore) filePath() string {
	return filepath.Join(s.basePath, "credentials.yaml")
}

// Load returns the stored credential, or "" when none is stored.
func (s *fileCredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	var cf credentialsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return "", fmt.Errorf("loading credentials: parsing YAML: %w", err)
	}
	return cf.Values[TokenKey], nil
}

// Save writes the credential atomically with owner-only permissions.
func (s *fileCredentialStore) Save(token string) error {
	if token == "" {
		return fmt.Errorf("saving credentials: token must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o700); err != nil {
		return fmt.Errorf("saving credentials: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&credentialsFile{
		Version: "1.0",
		Values:  map[string]string{TokenKey: token},
	})
	if err != nil {
		return fmt.Errorf("saving credentials: marshaling YAML: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, ".credentials-*.yaml")
	if err != nil {
		return fmt.Errorf("saving credentials: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving credentials: setting permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving credentials: writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving credentials: closing file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath()); err != nil {
		return fmt.Errorf("saving credentials: replacing file: %w", err)
	}
	return nil
}

// Clear removes the stored credential. Clearing an empty store is not an
// error.
func (s *fileCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// MemoryCredentialStore keeps the credential in memory. Tests use it in
// place of the file store.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryCredentialStore creates a MemoryCredentialStore seeded with token.
func NewMemoryCredentialStore(token string) *MemoryCredentialStore {
	return &MemoryCredentialStore{token: token}
}

func (s *MemoryCredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryCredentialStore) Save(token string) error {
	if token == "" {
		return fmt.Errorf("saving credentials: token must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
