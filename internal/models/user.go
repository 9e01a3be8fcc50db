package models

import (
	"strings"
	"time"
)

// User is an account able to log in and own reports
type User struct {
	ID        uint       `gorm:"column:id;primaryKey" json:"id"`
	Username  string     `gorm:"column:username;size:50;uniqueIndex;not null" json:"username"`
	Email     string     `gorm:"column:email;size:100;uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"column:hashed_password;size:255;not null" json:"-"`
	IsAdmin   bool       `gorm:"column:is_admin;default:false" json:"is_admin"`
	LastLogin *time.Time `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`

	// 2FA fields
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	// Owned report IDs in append order
	Reports []UserReport `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserReport links a user to a report ID they claimed. There is no FK to
// reports: a user may record an ID before the report row exists.
type UserReport struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"-"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_user_report" json:"user_id"`
	ReportID  string    `gorm:"column:report_id;size:255;not null;uniqueIndex:idx_user_report;index" json:"report_id"`
	Position  int       `gorm:"column:position;not null" json:"position"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// ReportIDs returns the owned report IDs ordered by position. Reports must be preloaded.
func (u *User) ReportIDs() []string {
	ids := make([]string, 0, len(u.Reports))
	for _, r := range u.Reports {
		ids = append(ids, r.ReportID)
	}
	return ids
}

// ReportIDList is the semicolon-joined form exposed to API clients
func (u *User) ReportIDList() string {
	return strings.Join(u.ReportIDs(), ";")
}

func (User) TableName() string {
	return "users"
}

func (UserReport) TableName() string {
	return "user_reports"
}
