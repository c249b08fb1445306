package models

import "time"

type User struct {
	Base
	Email           string `gorm:"uniqueIndex;not null" json:"email"`
	Username        string `gorm:"uniqueIndex;not null" json:"username"`
	FullName        string `json:"fullName"`
	AvatarURL       string `json:"avatarUrl"`
	PasswordHash    string `gorm:"not null" json:"-"`
	IsEmailVerified bool   `gorm:"not null;default:false" json:"isEmailVerified"`

	// Single-use tokens are stored as sha256 hex digests, never in the clear.
	EmailVerificationToken  string     `gorm:"index" json:"-"`
	EmailVerificationExpiry *time.Time `json:"-"`
	ForgotPasswordToken     string     `gorm:"index" json:"-"`
	ForgotPasswordExpiry    *time.Time `json:"-"`
	RefreshTokenHash        string     `json:"-"`
}

func (User) TableName() string {
	return "users"
}
