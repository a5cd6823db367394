package model

import "time"

type GlobalRole string

const (
	RoleStudent     GlobalRole = "student"
	RoleCoordinator GlobalRole = "coordinator"
	RoleAdmin       GlobalRole = "admin"
)

func (r GlobalRole) Valid() bool {
	switch r {
	case RoleStudent, RoleCoordinator, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

type User struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Password   string     `gorm:"size:255;not null" json:"-"`
	Email      string     `gorm:"uniqueIndex;size:64;not null" json:"email"`
	Name       string     `gorm:"size:64" json:"name"`
	RollNumber string     `gorm:"size:32;index" json:"rollNumber"`
	Department string     `gorm:"size:64" json:"department"`
	Year       int        `json:"year"`
	GlobalRole GlobalRole `gorm:"size:16;not null;default:student;index" json:"globalRole"`
	Status     UserStatus `gorm:"size:16;not null;default:active" json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Session 每次登录一条，RevokedAt 非空即失效
type Session struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserID     uint64     `gorm:"not null;index" json:"userId"`
	Device     string     `gorm:"size:64" json:"device"`
	UserAgent  string     `gorm:"size:255" json:"userAgent"`
	IP         string     `gorm:"size:64" json:"ip"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
	ExpiresAt  time.Time  `gorm:"index" json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
