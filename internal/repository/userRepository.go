package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/governance-api/internal/models"
	"github.com/aman-churiwal/governance-api/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *storage.Postgres
}

func NewUserRepository(db *storage.Postgres) *UserRepository {
	return &UserRepository{db: db}
}

// Retrieves user by id. A missing user, or an id that is not a uuid, is (nil, nil).
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	var user models.User
	err = r.db.DB.WithContext(ctx).
		Where("id = ?", uid).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Changes the subscription tier of a user
func (r *UserRepository) UpdateTier(ctx context.Context, id, tier string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("tier", tier).Error
}
