package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	APIBaseURL            string    `json:"apiBaseUrl"`
	DataDir               string    `json:"dataDir"`
	PageSize              int       `json:"pageSize"`
	RequestTimeoutSeconds int       `json:"requestTimeoutSeconds"`
	Media                 Media     `json:"media"`
	DevServer             DevServer `json:"devServer"`
}

// Media configuration for guest image copies and uploads
type Media struct {
	MaxFileSizeMB     int64    `json:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions"`
}

// DevServer configures the reference photo service
type DevServer struct {
	Address      string `json:"address"`
	DatabasePath string `json:"databasePath"`
	StoragePath  string `json:"storagePath"`
	JWTSecret    string `json:"jwtSecret"`
}

// GuestPhotosDir is where guest photo documents live
func (c *Config) GuestPhotosDir() string {
	return filepath.Join(c.DataDir, "guest_photos")
}

// GuestMediaDir is where guest image copies live
func (c *Config) GuestMediaDir() string {
	return filepath.Join(c.DataDir, "photos")
}

// SessionFile holds the persisted token and user
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}

// RequestTimeout is the per-request timeout of the gateway
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		APIBaseURL:            "http://127.0.0.1:3001/api",
		DataDir:               defaultDataDir(),
		PageSize:              15,
		RequestTimeoutSeconds: 30,
		Media: Media{
			MaxFileSizeMB: 50,
			AllowedExtensions: []string{
				".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif",
			},
		},
		DevServer: DevServer{
			Address:      ":3001",
			DatabasePath: "journal-dev.db",
			StoragePath:  "./uploads",
			JWTSecret:    "CHANGE_THIS_DEV_SECRET_AT_LEAST_32_CHARS",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "photo-journal")
	}
	return ".photo-journal"
}

// Load loads configuration from CONFIG_PATH (default journal.json) and the environment
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "journal.json"
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from the given file, which may be absent
func LoadFile(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	absData, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = absData

	absStorage, err := filepath.Abs(cfg.DevServer.StoragePath)
	if err != nil {
		return nil, err
	}
	cfg.DevServer.StoragePath = absStorage

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeoutSeconds = n
		}
	}

	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.DevServer.Address = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DevServer.DatabasePath = v
	}
	if v := os.Getenv("PHOTO_STORAGE_PATH"); v != "" {
		cfg.DevServer.StoragePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.DevServer.JWTSecret = v
	}
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("apiBaseUrl cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir cannot be empty")
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return fmt.Errorf("pageSize must be between 1 and 100, got %d", c.PageSize)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("requestTimeoutSeconds must be positive")
	}
	return nil
}
