package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis (empty host disables token revocation and the status cache)
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret         string
	AccessTokenExpiry time.Duration
	AdminUsernames    []string

	// API
	APIPort            int
	CORSOrigins        string
	RateLimitPerMinute int

	// Upstream report provider
	UpstreamBaseURL string
	UpstreamAPIKey  string
	UpstreamTimeout time.Duration

	// Uploads may be large; bounded separately from status lookups
	UpstreamSubmitTimeout time.Duration

	// Report sync loop
	SyncInterval time.Duration
	SyncWorkers  int

	// Ledger export
	ExportInterval time.Duration
	ExportDir      string
	FTPHost        string
	FTPPort        int
	FTPUser        string
	FTPPassword    string
	FTPPath        string

	// Submission archive
	ArchiveBucket          string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

func Load() *Config {
	// An empty JWT secret is resolved later against system_preferences
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Println("WARNING: JWT_SECRET not set - a persisted secret will be used instead.")
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" && os.Getenv("DATABASE_URL") == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	upstreamKey := getEnv("UPSTREAM_API_KEY", "")
	if upstreamKey == "" {
		log.Println("WARNING: UPSTREAM_API_KEY not set - report sync and submissions will be rejected upstream.")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnvInt("DB_PORT", 5432),
		DBUser:      getEnv("DB_USER", "reportdesk"),
		DBPassword:  dbPassword,
		DBName:      getEnv("DB_NAME", "reportdesk"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret:         jwtSecret,
		AccessTokenExpiry: time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		AdminUsernames:    getEnvList("ADMIN_USERNAMES", []string{"plagwise_admin"}),

		APIPort:            getEnvInt("API_PORT", 8080),
		CORSOrigins:        getEnv("CORS_ORIGINS", "*"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),

		UpstreamBaseURL: strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "https://plagwise.com"), "/"),
		UpstreamAPIKey:  upstreamKey,
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		UpstreamSubmitTimeout: getEnvDuration("UPSTREAM_SUBMIT_TIMEOUT", 60*time.Second),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncWorkers:  getEnvInt("SYNC_WORKERS", 8),

		ExportInterval: getEnvDuration("EXPORT_INTERVAL", 0),
		ExportDir:      getEnv("EXPORT_DIR", "./exports"),
		FTPHost:        getEnv("FTP_HOST", ""),
		FTPPort:        getEnvInt("FTP_PORT", 21),
		FTPUser:        getEnv("FTP_USER", ""),
		FTPPassword:    getEnv("FTP_PASSWORD", ""),
		FTPPath:        getEnv("FTP_PATH", ""),

		ArchiveBucket:          getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:          getEnv("ARCHIVE_REGION", "auto"),
		ArchiveAccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
	}
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value DSN built from the parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// IsAdminUsername reports whether a newly registered username is bootstrapped as admin.
func (c *Config) IsAdminUsername(username string) bool {
	for _, name := range c.AdminUsernames {
		if name == username {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
