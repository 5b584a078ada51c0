package domain

import "time"

// Session binds an opaque refresh token to a user. At most
// MaxActiveSessionsPerUser rows with IsRevoked=false and a future ExpiresAt
// exist per user; the oldest active row is revoked to make room on login.
type Session struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RefreshToken string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	ExpiresAt    time.Time `gorm:"index;not null" json:"expires_at"`
	IsRevoked    bool      `gorm:"index;not null;default:false" json:"is_revoked"`
	DeviceInfo   string    `gorm:"size:512" json:"device_info"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	MaxActiveSessionsPerUser = 5
	RefreshTokenTTL          = 7 * 24 * time.Hour
)

func (s *Session) Active(now time.Time) bool {
	return !s.IsRevoked && s.ExpiresAt.After(now)
}
