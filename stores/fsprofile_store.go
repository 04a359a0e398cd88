package stores

import (
	"context"
	"path/filepath"
	"time"

	sa "github.com/loomline/siteauth"
)

// FSProfileStore stores profile documents as JSON files, one per uid.
type FSProfileStore struct {
	StoragePath string
}

func NewFSProfileStore(storagePath string) *FSProfileStore {
	return &FSProfileStore{StoragePath: storagePath}
}

func (s *FSProfileStore) profilePath(uid string) string {
	return filepath.Join(s.StoragePath, "profiles", uid+".json")
}

func (s *FSProfileStore) GetProfile(ctx context.Context, uid string) (*sa.Profile, error) {
	var profile sa.Profile
	if err := readJSONFile(s.profilePath(uid), &profile, sa.ErrProfileNotFound); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *FSProfileStore) PutProfile(ctx context.Context, profile *sa.Profile) error {
	stored := *profile
	stored.UpdatedAt = time.Now()
	return writeJSONFile(s.profilePath(profile.UID), &stored)
}
