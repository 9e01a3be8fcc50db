package database

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/models"
	"gorm.io/gorm"
)

const jwtSecretKey = "jwt_secret"

// EnsureJWTSecret returns the signing secret. JWT_SECRET wins; otherwise a
// secret is loaded from system_preferences, generating and saving one on first start.
func EnsureJWTSecret(db *gorm.DB, cfg *config.Config) string {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret
	}
	if db == nil {
		log.Println("Warning: Database not connected, using an ephemeral JWT secret")
		return generateSecureSecret(32)
	}

	var pref models.SystemPreference
	result := db.Where(&models.SystemPreference{Key: jwtSecretKey}).First(&pref)
	if result.Error == nil && pref.Value != "" {
		log.Println("JWT secret loaded from database - sessions will persist across restarts")
		return pref.Value
	}

	secret := generateSecureSecret(32)
	pref = models.SystemPreference{
		Key:       jwtSecretKey,
		Value:     secret,
		ValueType: "string",
	}

	if err := db.Create(&pref).Error; err != nil {
		// Another instance won the race; use its secret
		var existing models.SystemPreference
		if db.Where(&models.SystemPreference{Key: jwtSecretKey}).First(&existing).Error == nil && existing.Value != "" {
			return existing.Value
		}
		log.Printf("Warning: failed to persist JWT secret: %v", err)
	}

	log.Println("JWT secret generated and persisted to database")
	return secret
}

func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatalf("crypto/rand failed: %v", err)
	}
	return hex.EncodeToString(bytes)
}
