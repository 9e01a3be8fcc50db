package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reportdesk/backend/internal/models"
	"gorm.io/gorm"
)

// MaxSerialBatch caps a single IssueBatch call
const MaxSerialBatch = 1000

// SerialRegistry issues and redeems one-time serial numbers
type SerialRegistry struct {
	db *gorm.DB
}

func NewSerialRegistry(db *gorm.DB) *SerialRegistry {
	return &SerialRegistry{db: db}
}

// Redeem consumes a serial. The conditional delete is the whole check, so two
// concurrent redemptions of one code cannot both succeed.
func (r *SerialRegistry) Redeem(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidSerial
	}

	res := r.db.WithContext(ctx).Where("serial = ?", code).Delete(&models.SerialNumber{})
	if res.Error != nil {
		return fmt.Errorf("redeem serial: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrInvalidSerial
	}
	return nil
}

// IssueBatch creates count fresh UUIDv4 serials in one transaction
func (r *SerialRegistry) IssueBatch(ctx context.Context, count int) ([]models.SerialNumber, error) {
	if count < 1 || count > MaxSerialBatch {
		return nil, ErrInvalidCount
	}

	now := time.Now().UTC()
	serials := make([]models.SerialNumber, count)
	for i := range serials {
		serials[i] = models.SerialNumber{Serial: uuid.NewString(), CreatedAt: now}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&serials, 200).Error
	})
	if err != nil {
		return nil, fmt.Errorf("issue serials: %w", err)
	}
	return serials, nil
}

// List returns every unredeemed serial, newest first
func (r *SerialRegistry) List(ctx context.Context) ([]models.SerialNumber, error) {
	var serials []models.SerialNumber
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&serials).Error; err != nil {
		return nil, fmt.Errorf("list serials: %w", err)
	}
	return serials, nil
}
