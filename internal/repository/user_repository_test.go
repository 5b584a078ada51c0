package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pendek-app/pendek-auth/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestUserRepositoryFindActiveByEmail(t *testing.T) {
	repo := newUserRepoForTest(t)

	if err := repo.Create(&domain.User{Email: "alice@example.com", Name: "Alice", PasswordHash: "h"}); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if err := repo.Create(&domain.User{Email: "gone@example.com", Name: "Gone", PasswordHash: "h", IsDeleted: true}); err != nil {
		t.Fatalf("create deleted user: %v", err)
	}

	user, err := repo.FindActiveByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("find alice: %v", err)
	}
	if user.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := repo.FindActiveByEmail("gone@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found for soft-deleted user, got %v", err)
	}
	if _, err := repo.FindActiveByEmail("nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found for unknown email, got %v", err)
	}
}

func TestUserRepositoryFindByID(t *testing.T) {
	repo := newUserRepoForTest(t)

	u := &domain.User{Email: "bob@example.com", Name: "Bob", PasswordHash: "h"}
	if err := repo.Create(u); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	got, err := repo.FindByID(u.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.Email != "bob@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := repo.FindByID(u.ID + 100); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newUserRepoForTest(t *testing.T) UserRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate user: %v", err)
	}
	return NewUserRepository(db)
}
