package models

import "time"

// TelegramUser is the user object embedded in signed initData.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
}

// Identity is the result of successful credential verification.
// It is owned by the session that produced it and never shared.
type Identity struct {
	User     TelegramUser
	AuthDate time.Time
}

// UserID returns the numeric user identifier.
func (i Identity) UserID() int64 { return i.User.ID }
