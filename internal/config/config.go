package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT (tokens are issued by the web frontend; the API only validates them)
	JWTSecret string

	// API
	APIPort int

	// Cron trigger
	CronSecret string

	// Group/role directory
	DirectoryBaseURL string
	DirectoryTimeout time.Duration

	// Reset coordinator: run workspaces concurrently instead of sequentially
	ResetConcurrent bool

	// Activity read cache
	CacheTTL         time.Duration
	CacheStaleWindow time.Duration

	// Stale session cleanup
	StaleSessionMinutes int

	// Offsite history export (disabled when host is empty)
	ExportFTPHost     string
	ExportFTPPort     int
	ExportFTPUser     string
	ExportFTPPassword string
	ExportFTPDir      string
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Tokens will not validate across restarts.")
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	cronSecret := getEnv("CRON_SECRET", "")
	if cronSecret == "" {
		cronSecret = generateSecureSecret(24)
		log.Println("WARNING: CRON_SECRET not set - generated random secret. External cron triggers will fail until configured.")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "crewtrack"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "crewtrack"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret: jwtSecret,

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Cron
		CronSecret: cronSecret,

		// Directory
		DirectoryBaseURL: getEnv("DIRECTORY_BASE_URL", ""),
		DirectoryTimeout: time.Duration(getEnvInt("DIRECTORY_TIMEOUT_SECONDS", 5)) * time.Second,

		// Reset coordinator
		ResetConcurrent: getEnvBool("RESET_CONCURRENT", false),

		// Activity cache
		CacheTTL:         time.Duration(getEnvInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		CacheStaleWindow: time.Duration(getEnvInt("CACHE_STALE_SECONDS", 300)) * time.Second,

		// Stale sessions
		StaleSessionMinutes: getEnvInt("STALE_SESSION_MINUTES", 180),

		// History export
		ExportFTPHost:     getEnv("EXPORT_FTP_HOST", ""),
		ExportFTPPort:     getEnvInt("EXPORT_FTP_PORT", 21),
		ExportFTPUser:     getEnv("EXPORT_FTP_USER", ""),
		ExportFTPPassword: getEnv("EXPORT_FTP_PASSWORD", ""),
		ExportFTPDir:      getEnv("EXPORT_FTP_DIR", "/history"),
	}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
