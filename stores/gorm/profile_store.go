// Package gorm provides a ProfileStore backed by a relational database
// through gorm. Any dialect gorm supports works; the Loomline site uses it
// with postgres in staging.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	sa "github.com/loomline/siteauth"
)

// ProfileRecord is the relational shape of a profile document.
type ProfileRecord struct {
	UID       string `gorm:"primaryKey"`
	FullName  string
	UpdatedAt time.Time
}

func (ProfileRecord) TableName() string { return "siteauth_profiles" }

// ProfileStore stores one profile row per uid.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore migrates the profiles table and returns the store.
func NewProfileStore(db *gorm.DB) (*ProfileStore, error) {
	if err := db.AutoMigrate(&ProfileRecord{}); err != nil {
		return nil, err
	}
	return &ProfileStore{db: db}, nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (*sa.Profile, error) {
	var rec ProfileRecord
	err := s.db.WithContext(ctx).First(&rec, "uid = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sa.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sa.Profile{UID: rec.UID, FullName: rec.FullName, UpdatedAt: rec.UpdatedAt}, nil
}

func (s *ProfileStore) PutProfile(ctx context.Context, profile *sa.Profile) error {
	rec := ProfileRecord{
		UID:       profile.UID,
		FullName:  profile.FullName,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}
