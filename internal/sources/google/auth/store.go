package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when the cache holds no credential for a user.
var ErrNoToken = errors.New("no cached token")

// TokenStore keeps one OAuth token per user key as a JSON file in a directory.
type TokenStore struct {
	dir string
}

// NewTokenStore returns a store rooted at dir. The directory is created lazily on Save.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

// Dir returns the cache directory.
func (s *TokenStore) Dir() string {
	return s.dir
}

// Path returns the token file for user.
func (s *TokenStore) Path(user string) string {
	return filepath.Join(s.dir, sanitizeUser(user)+".json")
}

// Load reads the cached token for user. It returns ErrNoToken if none is stored.
func (s *TokenStore) Load(user string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}

		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.Path(user), err)
	}

	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}

	return &tok, nil
}

// Save writes the token for user, replacing any previous one.
func (s *TokenStore) Save(user string, tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("refusing to save nil token")
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to set token file mode: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(user)); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// Delete removes the cached token for user. Missing tokens are not an error.
func (s *TokenStore) Delete(user string) error {
	if err := os.Remove(s.Path(user)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}

	return nil
}

func sanitizeUser(user string) string {
	if user == "" {
		return "user"
	}

	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(user)
}
