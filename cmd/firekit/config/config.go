package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir       string
	LogLevel      string
	BinaryMode    string
	BundleDir     string
	Release       string
	ChrootBaseDir string
	JailUID       int
	JailGID       int
	GuestMemory   string
	GuestVcpus    int
	ReadyTimeout  time.Duration
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	return &Config{
		DataDir:       getEnv("FIREKIT_DATA_DIR", "/var/lib/firekit"),
		LogLevel:      getEnv("FIREKIT_LOG_LEVEL", "info"),
		BinaryMode:    getEnv("FIREKIT_BINARY_MODE", "bundled-then-system"),
		BundleDir:     getEnv("FIREKIT_BUNDLE_DIR", ""),
		Release:       getEnv("FIREKIT_RELEASE", ""),
		ChrootBaseDir: getEnv("FIREKIT_CHROOT_BASE_DIR", "/srv/jailer"),
		JailUID:       getEnvInt("FIREKIT_JAIL_UID", 0),
		JailGID:       getEnvInt("FIREKIT_JAIL_GID", 0),
		GuestMemory:   getEnv("FIREKIT_GUEST_MEMORY", "512MB"),
		GuestVcpus:    getEnvInt("FIREKIT_GUEST_VCPUS", 1),
		ReadyTimeout:  getEnvDuration("FIREKIT_READY_TIMEOUT", 5*time.Second),
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
