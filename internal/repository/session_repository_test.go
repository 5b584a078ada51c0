package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pendek-app/pendek-auth/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSessionRepositoryAdmitEnforcesCap(t *testing.T) {
	repo, db := newSessionRepoForTest(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < domain.MaxActiveSessionsPerUser; i++ {
		s := &domain.Session{
			RefreshToken: fmt.Sprintf("tok-%d", i),
			UserID:       1,
			ExpiresAt:    time.Now().Add(24 * time.Hour),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Admit(s); err != nil {
			t.Fatalf("admit session %d: %v", i, err)
		}
	}

	count, err := repo.CountActive(1)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != domain.MaxActiveSessionsPerUser {
		t.Fatalf("expected %d active sessions, got %d", domain.MaxActiveSessionsPerUser, count)
	}

	if err := repo.Admit(&domain.Session{
		RefreshToken: "tok-over-cap",
		UserID:       1,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("admit over cap: %v", err)
	}

	count, err = repo.CountActive(1)
	if err != nil {
		t.Fatalf("count after eviction: %v", err)
	}
	if count != domain.MaxActiveSessionsPerUser {
		t.Fatalf("expected cap held at %d, got %d", domain.MaxActiveSessionsPerUser, count)
	}

	// The oldest session pays for the new one.
	var oldest domain.Session
	if err := db.Where("refresh_token = ?", "tok-0").First(&oldest).Error; err != nil {
		t.Fatalf("load evicted session: %v", err)
	}
	if !oldest.IsRevoked {
		t.Fatal("expected oldest session to be revoked")
	}
	if _, err := repo.FindActiveByToken("tok-over-cap"); err != nil {
		t.Fatalf("new session should be active: %v", err)
	}
}

func TestSessionRepositoryAdmitDoesNotEvictAcrossUsers(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)

	for i := 0; i < domain.MaxActiveSessionsPerUser; i++ {
		if err := repo.Admit(&domain.Session{
			RefreshToken: fmt.Sprintf("u1-%d", i),
			UserID:       1,
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		}); err != nil {
			t.Fatalf("admit user1 session %d: %v", i, err)
		}
	}
	if err := repo.Admit(&domain.Session{
		RefreshToken: "u2-0",
		UserID:       2,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("admit user2 session: %v", err)
	}

	count, err := repo.CountActive(1)
	if err != nil {
		t.Fatalf("count user1: %v", err)
	}
	if count != domain.MaxActiveSessionsPerUser {
		t.Fatalf("user1 sessions should be untouched, got %d", count)
	}
}

func TestSessionRepositoryFindActiveByTokenFilters(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)

	active := &domain.Session{RefreshToken: "live", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	revoked := &domain.Session{RefreshToken: "revoked", UserID: 1, ExpiresAt: time.Now().Add(time.Hour), IsRevoked: true}
	expired := &domain.Session{RefreshToken: "expired", UserID: 1, ExpiresAt: time.Now().Add(-time.Hour)}
	for _, s := range []*domain.Session{active, revoked, expired} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("create %s: %v", s.RefreshToken, err)
		}
	}

	if _, err := repo.FindActiveByToken("live"); err != nil {
		t.Fatalf("find live: %v", err)
	}
	if _, err := repo.FindActiveByToken("revoked"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for revoked token, got %v", err)
	}
	if _, err := repo.FindActiveByToken("expired"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for expired token, got %v", err)
	}

	// The unrevoked lookup still sees the expired row; revocation is checked
	// separately from expiry there.
	if _, err := repo.FindUnrevokedByToken("expired"); err != nil {
		t.Fatalf("find unrevoked expired: %v", err)
	}
	if _, err := repo.FindUnrevokedByToken("revoked"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for revoked token, got %v", err)
	}
}

func TestSessionRepositoryRevokeAllByUserScopes(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)

	for i := 0; i < 3; i++ {
		if err := repo.Create(&domain.Session{
			RefreshToken: fmt.Sprintf("u1-%d", i),
			UserID:       1,
			ExpiresAt:    time.Now().Add(time.Hour),
		}); err != nil {
			t.Fatalf("create user1 session: %v", err)
		}
	}
	if err := repo.Create(&domain.Session{RefreshToken: "u2-0", UserID: 2, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create user2 session: %v", err)
	}

	if err := repo.RevokeAllByUser(1); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	count, err := repo.CountActive(1)
	if err != nil {
		t.Fatalf("count user1: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active user1 sessions, got %d", count)
	}
	if _, err := repo.FindActiveByToken("u2-0"); err != nil {
		t.Fatalf("user2 session should stay active: %v", err)
	}

	// Zero remaining sessions is not an error.
	if err := repo.RevokeAllByUser(1); err != nil {
		t.Fatalf("second revoke all: %v", err)
	}
}

func TestSessionRepositoryPurgeExpiredOrRevoked(t *testing.T) {
	repo, db := newSessionRepoForTest(t)

	rows := []*domain.Session{
		{RefreshToken: "live", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)},
		{RefreshToken: "revoked", UserID: 1, ExpiresAt: time.Now().Add(time.Hour), IsRevoked: true},
		{RefreshToken: "expired", UserID: 1, ExpiresAt: time.Now().Add(-time.Hour)},
	}
	for _, s := range rows {
		if err := repo.Create(s); err != nil {
			t.Fatalf("create %s: %v", s.RefreshToken, err)
		}
	}

	deleted, err := repo.PurgeExpiredOrRevoked()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 purged rows, got %d", deleted)
	}

	var remaining int64
	if err := db.Model(&domain.Session{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 remaining row, got %d", remaining)
	}

	// Idempotent: a second sweep finds nothing.
	deleted, err = repo.PurgeExpiredOrRevoked()
	if err != nil {
		t.Fatalf("second purge: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 purged rows on second sweep, got %d", deleted)
	}
}

func newSessionRepoForTest(t *testing.T) (SessionRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		t.Fatalf("migrate session: %v", err)
	}
	return NewSessionRepository(db), db
}
