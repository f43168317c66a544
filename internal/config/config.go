package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Music     MusicConfig     `toml:"music"`
	Cache     CacheConfig     `toml:"cache"`
	Transcode TranscodeConfig `toml:"transcode"`
	Logging   LoggingConfig   `toml:"logging"`
	Ngrok     NgrokConfig     `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	EnableCORS     bool   `toml:"enable_cors"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	RequestLogging bool   `toml:"request_logging"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// MusicConfig contains music library configuration
type MusicConfig struct {
	LibraryPath      string   `toml:"library_path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
	DebounceMillis   int      `toml:"debounce_ms"`
}

// CacheConfig points at the directory holding album art and transcodes.
type CacheConfig struct {
	Path string `toml:"path"`
}

// TranscodeConfig contains ffmpeg settings for on-demand conversion
type TranscodeConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	DefaultFormat  string `toml:"default_format"`
	Bitrate        string `toml:"bitrate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	File     string `toml:"file"`
	ErrorLog string `toml:"error_log"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			EnableCORS:     true,
			ReadTimeout:    30,
			RequestLogging: true,
		},
		Database: DatabaseConfig{
			Path:           "./legato.db",
			MaxConnections: 5,
		},
		Music: MusicConfig{
			LibraryPath:      "./music",
			SupportedFormats: []string{".mp3", ".flac", ".m4a"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
			DebounceMillis:   3000,
		},
		Cache: CacheConfig{
			Path: "./cache",
		},
		Transcode: TranscodeConfig{
			FFmpegPath:     "ffmpeg",
			DefaultFormat:  "mp3",
			Bitrate:        "320k",
			TimeoutSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			File:     "",
			ErrorLog: "./error_log.txt",
		},
		Ngrok: NgrokConfig{
			Enabled: false,
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies .env and
// environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env is optional; a missing file is not an error
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides paths and secrets from the process environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("MUSIC_PATH"); v != "" {
		c.Music.LibraryPath = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); v != "" && c.Ngrok.AuthToken == "" {
		c.Ngrok.AuthToken = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Legato Library Server Configuration
# Paths can also be set with MUSIC_PATH, CACHE_PATH and DATABASE_PATH.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Music.LibraryPath == "" {
		return fmt.Errorf("music library path cannot be empty")
	}
	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Music.DebounceMillis <= 0 {
		return fmt.Errorf("music debounce must be positive")
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("cache path cannot be empty")
	}

	if c.Transcode.DefaultFormat == "" {
		return fmt.Errorf("transcode default format cannot be empty")
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		return fmt.Errorf("transcode timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsFormatSupported checks if an audio extension is in the allow-list.
// Matching ignores case and a missing leading dot.
func (c *Config) IsFormatSupported(format string) bool {
	format = normalizeExt(format)
	for _, supported := range c.Music.SupportedFormats {
		if normalizeExt(supported) == format {
			return true
		}
	}
	return false
}

// Extensions returns the allow-list as lower-case extensions with a dot.
func (c *Config) Extensions() []string {
	exts := make([]string, 0, len(c.Music.SupportedFormats))
	for _, f := range c.Music.SupportedFormats {
		exts = append(exts, normalizeExt(f))
	}
	return exts
}

// Debounce returns the watcher debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Music.DebounceMillis) * time.Millisecond
}

// TranscodeTimeout bounds a single conversion.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcode.TimeoutSeconds) * time.Second
}

// AlbumArtDir is where extracted or discovered album art is stored.
func (c *Config) AlbumArtDir() string {
	return filepath.Join(c.Cache.Path, "album-art")
}

// TranscodeDir is where converted audio is cached.
func (c *Config) TranscodeDir() string {
	return filepath.Join(c.Cache.Path, "transcode")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
