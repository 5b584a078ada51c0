package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pendek-app/pendek-auth/internal/domain"
	"github.com/pendek-app/pendek-auth/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	CountActive(userID uint) (int64, error)
	Create(s *domain.Session) error
	// Admit creates s, first revoking the user's oldest active session when
	// the concurrent-session cap would be exceeded. Count, eviction and
	// insert run in one transaction so racing logins cannot overshoot the cap.
	Admit(s *domain.Session) error
	FindActiveByToken(token string) (*domain.Session, error)
	FindUnrevokedByToken(token string) (*domain.Session, error)
	FindOldestActive(userID uint) (*domain.Session, error)
	Revoke(id uint) error
	RevokeAllByUser(userID uint) error
	PurgeExpiredOrRevoked() (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) CountActive(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "count_active", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "count_active", "success")
	return count, nil
}

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) Admit(s *domain.Session) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		var count int64
		if err := tx.Model(&domain.Session{}).
			Where("user_id = ? AND is_revoked = ? AND expires_at > ?", s.UserID, false, now).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= domain.MaxActiveSessionsPerUser {
			var oldest domain.Session
			err := tx.Where("user_id = ? AND is_revoked = ?", s.UserID, false).
				Order("created_at ASC").
				First(&oldest).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err == nil {
				if err := tx.Model(&domain.Session{}).
					Where("id = ?", oldest.ID).
					Update("is_revoked", true).Error; err != nil {
					return err
				}
			}
		}
		return tx.Create(s).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "admit", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "admit", "success")
	return nil
}

func (r *GormSessionRepository) FindActiveByToken(token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token = ? AND is_revoked = ? AND expires_at > ?", token, false, time.Now()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindUnrevokedByToken(token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token = ? AND is_revoked = ?", token, false).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_unrevoked_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_unrevoked_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_unrevoked_by_token", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindOldestActive(userID uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("user_id = ? AND is_revoked = ?", userID, false).
		Order("created_at ASC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_oldest_active", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_oldest_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_oldest_active", "success")
	return &s, nil
}

func (r *GormSessionRepository) Revoke(id uint) error {
	err := r.db.Model(&domain.Session{}).
		Where("id = ? AND is_revoked = ?", id, false).
		Update("is_revoked", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke", "success")
	return nil
}

func (r *GormSessionRepository) RevokeAllByUser(userID uint) error {
	err := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_all_by_user", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_all_by_user", "success")
	return nil
}

func (r *GormSessionRepository) PurgeExpiredOrRevoked() (int64, error) {
	res := r.db.Where("is_revoked = ? OR expires_at <= ?", true, time.Now()).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "purge", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "purge", "success")
	return res.RowsAffected, nil
}
