package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pendek-app/pendek-auth/internal/domain"
	"github.com/pendek-app/pendek-auth/internal/observability"
	"github.com/pendek-app/pendek-auth/internal/repository"
	"github.com/pendek-app/pendek-auth/internal/security"
)

var (
	// ErrInvalidCredential covers unknown email and wrong password alike, so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrInvalidRefreshToken = errors.New("refresh token invalid or expired")
	ErrTokenNotFound       = errors.New("refresh token not found")
	ErrUserTokenMismatch   = errors.New("token subject does not match claimed user")
)

// PasswordVerifier is the hash compare capability consumed at login.
type PasswordVerifier interface {
	Verify(password, hash string) error
}

type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	hasher   PasswordVerifier
	tokens   *security.TokenManager
}

func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, hasher PasswordVerifier, tokens *security.TokenManager) *AuthService {
	return &AuthService{users: users, sessions: sessions, hasher: hasher, tokens: tokens}
}

// Login verifies the credential, mints both tokens and admits the new session,
// evicting the user's oldest active session when the cap is reached. The cap
// never fails a login.
func (s *AuthService) Login(email, password, ipAddress, userAgent string) (*LoginResult, error) {
	user, err := s.users.FindActiveByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin("local", "invalid_credential")
			return nil, ErrInvalidCredential
		}
		observability.RecordAuthLogin("local", "error")
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		observability.RecordAuthLogin("local", "invalid_credential")
		return nil, ErrInvalidCredential
	}

	access, err := s.tokens.SignAccessToken(user.ID, user.Name)
	if err != nil {
		observability.RecordAuthLogin("local", "error")
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh := security.NewRefreshToken()
	if err := s.sessions.Admit(&domain.Session{
		RefreshToken: refresh,
		UserID:       user.ID,
		ExpiresAt:    time.Now().Add(domain.RefreshTokenTTL),
		DeviceInfo:   userAgent,
		IPAddress:    ipAddress,
	}); err != nil {
		observability.RecordAuthLogin("local", "error")
		return nil, fmt.Errorf("admit session: %w", err)
	}
	observability.RecordAuthLogin("local", "success")
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    security.ExpiresInSeconds(),
	}, nil
}

// Verify checks signature and expiry, then cross-checks the externally
// supplied claimed subject against the token's own subject. Read-only.
func (s *AuthService) Verify(accessToken, claimedSubject string) (*security.AccessClaims, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject != claimedSubject {
		return nil, ErrUserTokenMismatch
	}
	return claims, nil
}

// Refresh issues a new access token for an active session. The refresh token
// itself is not rotated; it stays valid until its fixed expiry or revocation.
func (s *AuthService) Refresh(refreshToken string) (*RefreshResult, error) {
	session, err := s.sessions.FindActiveByToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthRefresh("invalid_token")
			return nil, ErrInvalidRefreshToken
		}
		observability.RecordAuthRefresh("error")
		return nil, fmt.Errorf("refresh lookup: %w", err)
	}
	user, err := s.users.FindByID(session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthRefresh("invalid_token")
			return nil, ErrInvalidRefreshToken
		}
		observability.RecordAuthRefresh("error")
		return nil, fmt.Errorf("refresh user lookup: %w", err)
	}
	access, err := s.tokens.SignAccessToken(user.ID, user.Name)
	if err != nil {
		observability.RecordAuthRefresh("error")
		return nil, fmt.Errorf("reissue access token: %w", err)
	}
	observability.RecordAuthRefresh("success")
	return &RefreshResult{AccessToken: access, ExpiresIn: security.ExpiresInSeconds()}, nil
}

// RevokeToken flips is_revoked on an unrevoked session. Revoking the same
// token twice yields ErrTokenNotFound; the lookup only matches unrevoked rows.
func (s *AuthService) RevokeToken(refreshToken string) error {
	session, err := s.sessions.FindUnrevokedByToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthRevoke("not_found")
			return ErrTokenNotFound
		}
		observability.RecordAuthRevoke("error")
		return fmt.Errorf("revoke lookup: %w", err)
	}
	if err := s.sessions.Revoke(session.ID); err != nil {
		observability.RecordAuthRevoke("error")
		return fmt.Errorf("revoke session: %w", err)
	}
	observability.RecordAuthRevoke("success")
	return nil
}

// Logout revokes every active session for the user. Zero sessions is success.
func (s *AuthService) Logout(userID uint) error {
	if err := s.sessions.RevokeAllByUser(userID); err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("logout: %w", err)
	}
	observability.RecordAuthLogout("success")
	return nil
}

// ParseUserID converts a token subject back into a user id.
func (s *AuthService) ParseUserID(subject string) (uint, error) {
	id64, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse subject %q: %w", subject, err)
	}
	return uint(id64), nil
}
