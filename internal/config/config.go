package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RemoteBaseURL string
	RemoteTimeout time.Duration

	LocalDBDSN string

	SessionFile   string
	SessionSecret string

	ServerPort string

	SyncInterval      time.Duration
	FreshnessTTL      time.Duration
	SyncDegradedAfter int

	RedisURL  string
	StreamURL string

	Backup BackupConfig

	MediaDir   string
	MediaMaxPx int
}

// BackupConfig is optional; an empty Bucket disables the exporter.
type BackupConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	remoteTimeout, err := getDuration("REMOTE_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	syncInterval, err := getDuration("SYNC_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	freshnessTTL, err := getDuration("FRESHNESS_TTL", "2m")
	if err != nil {
		return nil, err
	}

	degradedAfter, err := strconv.Atoi(getEnv("SYNC_DEGRADED_AFTER", "3"))
	if err != nil || degradedAfter < 1 {
		return nil, fmt.Errorf("invalid SYNC_DEGRADED_AFTER: %q", os.Getenv("SYNC_DEGRADED_AFTER"))
	}

	mediaMaxPx, err := strconv.Atoi(getEnv("MEDIA_MAX_PX", "256"))
	if err != nil || mediaMaxPx < 16 {
		return nil, fmt.Errorf("invalid MEDIA_MAX_PX: %q", os.Getenv("MEDIA_MAX_PX"))
	}

	return &Config{
		RemoteBaseURL:     strings.TrimRight(getEnv("REMOTE_BASE_URL", "http://localhost:8000/api"), "/"),
		RemoteTimeout:     remoteTimeout,
		LocalDBDSN:        getEnv("LOCAL_DB_DSN", "clinic_cache.db"),
		SessionFile:       getEnv("SESSION_FILE", "session.bin"),
		SessionSecret:     getEnv("SESSION_SECRET", "changeme"),
		ServerPort:        getEnv("SERVER_PORT", "8765"),
		SyncInterval:      syncInterval,
		FreshnessTTL:      freshnessTTL,
		SyncDegradedAfter: degradedAfter,
		RedisURL:          getEnv("REDIS_URL", ""),
		StreamURL:         getEnv("STREAM_URL", ""),
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_BUCKET", ""),
			Region:    getEnv("BACKUP_REGION", "us-east-1"),
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		},
		MediaDir:   getEnv("MEDIA_DIR", "media"),
		MediaMaxPx: mediaMaxPx,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

// Addr binds the UI API to loopback only.
func (c *Config) Addr() string {
	return fmt.Sprintf("127.0.0.1:%s", c.ServerPort)
}

func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.LocalDBDSN, "postgres://") ||
		strings.HasPrefix(c.LocalDBDSN, "postgresql://")
}
