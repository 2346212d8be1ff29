package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Document store backends
const (
	DocStorePostgres  = "postgres"
	DocStoreFirestore = "firestore"
)

// Auth modes
const (
	AuthModeAuto     = "auto"
	AuthModePassword = "password"
	AuthModeREST     = "rest"
)

type Config struct {
	DocStore string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string

	AuthMode    string
	AuthRESTURL string
	AuthAPIKey  string

	JWTSecret     string
	SessionMaxAge int

	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string

	PrefsPath string
	LogLevel  string

	FeedRefreshDelay time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	sessionMaxAge, err := strconv.Atoi(os.Getenv("SESSION_MAX_AGE"))
	if err != nil || sessionMaxAge <= 0 {
		sessionMaxAge = 2592000
	}

	refreshDelayMS, err := strconv.Atoi(os.Getenv("FEED_REFRESH_DELAY_MS"))
	if err != nil || refreshDelayMS < 0 {
		refreshDelayMS = 500
	}

	prefsPath := os.Getenv("PREFS_PATH")
	if prefsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		prefsPath = filepath.Join(home, ".ddp", "prefs.yaml")
	}

	return &Config{
		DocStore: strings.ToLower(getEnv("DOCSTORE", DocStorePostgres)),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		RedisURL: os.Getenv("REDIS_URL"),

		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail: os.Getenv("FIREBASE_CLIENT_EMAIL"),
		FirebasePrivateKey:  os.Getenv("FIREBASE_PRIVATE_KEY"),

		AuthMode:    strings.ToLower(getEnv("AUTH_MODE", AuthModeAuto)),
		AuthRESTURL: strings.TrimSuffix(getEnv("AUTH_REST_URL", "https://identitytoolkit.googleapis.com/v1"), "/"),
		AuthAPIKey:  os.Getenv("AUTH_API_KEY"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		SessionMaxAge: sessionMaxAge,

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),

		PrefsPath: prefsPath,
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),

		FeedRefreshDelay: time.Duration(refreshDelayMS) * time.Millisecond,
	}, nil
}

// ArchiveEnabled reports whether processed photos are also written to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
