package services

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrInvalidSerial     = errors.New("serial number is invalid or already used")
	ErrInvalidCount      = errors.New("count must be between 1 and 1000")
	ErrReportNotFound    = errors.New("report not found")
	ErrMissingReportID   = errors.New("report ID is required")
	ErrDuplicateUsername = errors.New("username already registered")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrUserNotFound      = errors.New("user not found")
)

const pgUniqueViolation = "23505"

// isUniqueViolation recognises duplicate-key failures from Postgres and SQLite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
