package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reportdesk/backend/internal/models"
	"gorm.io/gorm"
)

// CredentialStore persists users and the report IDs they own
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Create registers a user. Username and email must both be unused.
func (s *CredentialStore) Create(ctx context.Context, username, email, passwordHash string, isAdmin bool) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateUsername
	}
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateEmail
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: passwordHash,
		IsAdmin:  isAdmin,
	}
	if err := db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent registration
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return nil, ErrDuplicateEmail
			}
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, "username = ?", username)
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s *CredentialStore) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where(query, arg).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// AppendReport adds reportID to the end of the user's list unless already present
func (s *CredentialStore) AppendReport(ctx context.Context, userID uint, reportID string) (bool, error) {
	if reportID == "" {
		return false, ErrMissingReportID
	}

	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.UserReport{}).
			Where("user_id = ? AND report_id = ?", userID, reportID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		var last int
		if err := tx.Model(&models.UserReport{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		link := models.UserReport{UserID: userID, ReportID: reportID, Position: last + 1}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("append report %s: %w", reportID, err)
	}
	return added, nil
}

// RemoveReport drops reportID from the user's list; the report row itself is untouched
func (s *CredentialStore) RemoveReport(ctx context.Context, userID uint, reportID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND report_id = ?", userID, reportID).
		Delete(&models.UserReport{})
	if res.Error != nil {
		return false, fmt.Errorf("remove report %s: %w", reportID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReportIDs returns the user's report IDs in append order
func (s *CredentialStore) ReportIDs(ctx context.Context, userID uint) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.UserReport{}).
		Where("user_id = ?", userID).
		Order("position ASC").
		Pluck("report_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list report ids: %w", err)
	}
	return ids, nil
}

func (s *CredentialStore) SetAdmin(ctx context.Context, username string, isAdmin bool) (*models.User, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("is_admin", isAdmin)
	if res.Error != nil {
		return nil, fmt.Errorf("set admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByUsername(ctx, username)
}

func (s *CredentialStore) TouchLastLogin(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login", time.Now().UTC()).Error
}

// SetTwoFactor stores the TOTP secret and enabled flag together
func (s *CredentialStore) SetTwoFactor(ctx context.Context, userID uint, secret string, enabled bool) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_factor_secret":  secret,
			"two_factor_enabled": enabled,
		}).Error
}
