// Package gae provides a ProfileStore backed by Google Cloud Datastore for
// deployments on App Engine.
package gae

import (
	"context"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	sa "github.com/loomline/siteauth"
)

const profileKind = "SiteAuthProfile"

type profileEntity struct {
	UID       string    `datastore:"uid"`
	FullName  string    `datastore:"fullname"`
	UpdatedAt time.Time `datastore:"updated_at"`
}

// ProfileStore stores one profile entity per uid.
type ProfileStore struct {
	client *datastore.Client
}

func NewProfileStore(client *datastore.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

func (s *ProfileStore) profileKey(uid string) *datastore.Key {
	return datastore.NameKey(profileKind, uid, nil)
}

func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (*sa.Profile, error) {
	var entity profileEntity
	err := s.client.Get(ctx, s.profileKey(uid), &entity)
	if err == datastore.ErrNoSuchEntity {
		return nil, sa.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sa.Profile{UID: entity.UID, FullName: entity.FullName, UpdatedAt: entity.UpdatedAt}, nil
}

func (s *ProfileStore) PutProfile(ctx context.Context, profile *sa.Profile) error {
	entity := profileEntity{
		UID:       profile.UID,
		FullName:  profile.FullName,
		UpdatedAt: time.Now(),
	}
	_, err := s.client.Put(ctx, s.profileKey(profile.UID), &entity)
	return err
}

// ListProfiles returns up to limit profiles ordered by most recent update,
// for admin tooling.
func (s *ProfileStore) ListProfiles(ctx context.Context, limit int) ([]*sa.Profile, error) {
	query := datastore.NewQuery(profileKind).Order("-updated_at").Limit(limit)
	it := s.client.Run(ctx, query)

	var out []*sa.Profile
	for {
		var entity profileEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &sa.Profile{
			UID:       entity.UID,
			FullName:  entity.FullName,
			UpdatedAt: entity.UpdatedAt,
		})
	}
	return out, nil
}
