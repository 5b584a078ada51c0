package repository

import (
	"context"
	"errors"

	"github.com/pendek-app/pendek-auth/internal/domain"
	"github.com/pendek-app/pendek-auth/internal/observability"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads credential records owned by the user-management side.
// Create exists for seeding and tests only.
type UserRepository interface {
	FindActiveByEmail(email string) (*domain.User, error)
	FindByID(id uint) (*domain.User, error)
	Create(user *domain.User) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindActiveByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Where("email = ? AND is_deleted = ?", email, false).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_active_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_active_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_active_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) Create(user *domain.User) error {
	err := r.db.Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}
