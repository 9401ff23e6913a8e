package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// StoreBackend selects the persistence layer: "mongo" or "sqlite".
	StoreBackend string
	MongoURI     string
	MongoDB      string
	SQLitePath   string

	// RequestTimeout bounds REST request handling. The websocket endpoint is
	// exempt: its connections are long-lived.
	RequestTimeout time.Duration

	JWTSecret          string
	AccessTokenMinutes int

	AdminName     string
	AdminEmail    string
	AdminPassword string

	TempUploadDir    string
	MaxAttachmentMB  int
	UploadSessionTTL time.Duration

	CORSOrigins []string
	Debug       bool
}

func Load() (*Config, error) {
	cfg := &Config{
		AppName: getEnv("APP_NAME", "chatserver"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 5000),

		StoreBackend: getEnv("STORE_BACKEND", "mongo"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "chat"),
		SQLitePath:   getEnv("SQLITE_PATH", "chat.db"),

		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60),

		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		TempUploadDir:    getEnv("TEMP_UPLOAD_DIR", "temp_uploads"),
		MaxAttachmentMB:  getEnvAsInt("MAX_ATTACHMENT_MB", 50),
		UploadSessionTTL: time.Duration(getEnvAsInt("UPLOAD_SESSION_TTL_MINUTES", 15)) * time.Minute,

		Debug: getEnvAsBool("DEBUG", true),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreBackend {
	case "mongo", "sqlite":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be 'mongo' or 'sqlite', got %q", cfg.StoreBackend)
	}

	if err := os.MkdirAll(cfg.TempUploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) MaxAttachmentBytes() int {
	return c.MaxAttachmentMB << 20
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
