package stores

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sa "github.com/loomline/siteauth"
)

// ErrTokenNotFound is returned for unknown or expired tokens.
var ErrTokenNotFound = errors.New("token not found")

// FSTokenStore keeps verification, reset and sign-in link tokens as one JSON
// file per token under <storagePath>/tokens. Expired entries are dropped
// lazily on access and by PurgeExpired.
type FSTokenStore struct {
	StoragePath string
}

func NewFSTokenStore(storagePath string) *FSTokenStore {
	return &FSTokenStore{StoragePath: storagePath}
}

func (s *FSTokenStore) tokenDir() string {
	return filepath.Join(s.StoragePath, "tokens")
}

func (s *FSTokenStore) tokenPath(token string) string {
	return filepath.Join(s.tokenDir(), token+".json")
}

func (s *FSTokenStore) CreateToken(uid, email string, tokenType sa.TokenType, expiry time.Duration) (*sa.AuthToken, error) {
	token, err := sa.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	authToken := &sa.AuthToken{
		Token:     token,
		Type:      tokenType,
		UID:       uid,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
	}
	if err := writeJSONFile(s.tokenPath(token), authToken); err != nil {
		return nil, err
	}
	return authToken, nil
}

func (s *FSTokenStore) GetToken(token string) (*sa.AuthToken, error) {
	var authToken sa.AuthToken
	if err := readJSONFile(s.tokenPath(token), &authToken, ErrTokenNotFound); err != nil {
		return nil, err
	}
	if authToken.IsExpired() {
		_ = s.DeleteToken(token)
		return nil, ErrTokenNotFound
	}
	return &authToken, nil
}

func (s *FSTokenStore) DeleteToken(token string) error {
	err := os.Remove(s.tokenPath(token))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PurgeExpired removes every expired token file. Meant for a periodic
// maintenance call; correctness never depends on it running.
func (s *FSTokenStore) PurgeExpired() (int, error) {
	entries, err := os.ReadDir(s.tokenDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.tokenDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var authToken sa.AuthToken
		if err := json.Unmarshal(data, &authToken); err != nil || authToken.IsExpired() {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
