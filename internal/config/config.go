// Package config provides daemon configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the daemon configuration.
type Config struct {
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Library   LibraryConfig
	Remote    RemoteConfig
	Playback  PlaybackConfig
	Discovery DiscoveryConfig
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // pretty or json
}

// DataConfig holds local state storage configuration.
// The data dir holds the library mirror, the sync queue/history files,
// the stats database, the cover cache, and the pairing key.
type DataConfig struct {
	Dir string
}

// ServerConfig holds the control API configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LibraryConfig holds sideloaded-book configuration.
type LibraryConfig struct {
	// BooksDir is the directory scanned for local books. Empty disables
	// local import entirely.
	BooksDir    string
	ScanOnStart bool
	Watch       bool
}

// RemoteConfig holds media-server connection configuration.
type RemoteConfig struct {
	// URL of the media server. Empty runs the daemon fully offline;
	// the sync engine then queues everything.
	URL          string
	Token        string
	SyncInterval time.Duration
	// UploadRPS limits progress uploads during queue replay.
	UploadRPS   float64
	UploadBurst int
}

// PlaybackConfig holds playback defaults. The engine-level timing
// tunables (tick, epsilon, grace) live in playback.Options; these are
// the user-facing defaults restored at startup.
type PlaybackConfig struct {
	DefaultRate   float64
	DefaultVolume float64
}

// DiscoveryConfig holds mDNS configuration.
type DiscoveryConfig struct {
	Advertise bool
	Browse    bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (pretty, json)")
	dataDir := flag.String("data-dir", "", "Directory for local state")
	booksDir := flag.String("books-dir", "", "Directory scanned for local books")
	scanOnStart := flag.String("scan-on-start", "", "Scan the books directory at startup (default: true)")
	watchBooks := flag.String("watch-books", "", "Watch the books directory for changes (default: true)")

	serverHost := flag.String("host", "", "Control API host (default: 127.0.0.1)")
	serverPort := flag.String("port", "", "Control API port (default: 7575)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	remoteURL := flag.String("remote-url", "", "Media server URL")
	remoteToken := flag.String("remote-token", "", "Media server bearer token")
	syncInterval := flag.String("sync-interval", "", "Pending-queue replay interval (default: 30s)")
	uploadRPS := flag.String("upload-rps", "", "Progress upload rate limit (default: 2)")

	defaultRate := flag.String("playback-rate", "", "Default playback rate (default: 1.0)")
	defaultVolume := flag.String("playback-volume", "", "Default volume (default: 1.0)")

	advertise := flag.String("advertise", "", "Advertise the control API via mDNS (default: true)")
	browse := flag.String("browse", "", "Browse for media servers via mDNS (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "STORYLINE_LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "STORYLINE_LOG_FORMAT", "pretty"),
		},
		Data: DataConfig{
			Dir: getConfigValue(*dataDir, "STORYLINE_DATA_DIR", ""),
		},
		Server: ServerConfig{
			Host: getConfigValue(*serverHost, "STORYLINE_HOST", "127.0.0.1"),
			Port: getConfigValue(*serverPort, "STORYLINE_PORT", "7575"),
		},
		Library: LibraryConfig{
			BooksDir:    getConfigValue(*booksDir, "STORYLINE_BOOKS_DIR", ""),
			ScanOnStart: getBoolConfigValue(*scanOnStart, "STORYLINE_SCAN_ON_START", true),
			Watch:       getBoolConfigValue(*watchBooks, "STORYLINE_WATCH_BOOKS", true),
		},
		Remote: RemoteConfig{
			URL:         getConfigValue(*remoteURL, "STORYLINE_REMOTE_URL", ""),
			Token:       getConfigValue(*remoteToken, "STORYLINE_REMOTE_TOKEN", ""),
			UploadRPS:   getFloatConfigValue(*uploadRPS, "STORYLINE_UPLOAD_RPS", 2),
			UploadBurst: getIntConfigValue("", "STORYLINE_UPLOAD_BURST", 5),
		},
		Playback: PlaybackConfig{
			DefaultRate:   getFloatConfigValue(*defaultRate, "STORYLINE_PLAYBACK_RATE", 1.0),
			DefaultVolume: getFloatConfigValue(*defaultVolume, "STORYLINE_PLAYBACK_VOLUME", 1.0),
		},
		Discovery: DiscoveryConfig{
			Advertise: getBoolConfigValue(*advertise, "STORYLINE_ADVERTISE", true),
			Browse:    getBoolConfigValue(*browse, "STORYLINE_BROWSE", true),
		},
	}

	// Parse durations.
	syncIntervalStr := getConfigValue(*syncInterval, "STORYLINE_SYNC_INTERVAL", "30s")
	syncIntervalDuration, err := time.ParseDuration(syncIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid sync interval %q: %w", syncIntervalStr, err)
	}
	cfg.Remote.SyncInterval = syncIntervalDuration

	readTimeoutStr := getConfigValue(*readTimeout, "STORYLINE_READ_TIMEOUT", "15s")
	readTimeoutDuration, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = readTimeoutDuration

	writeTimeoutStr := getConfigValue(*writeTimeout, "STORYLINE_WRITE_TIMEOUT", "15s")
	writeTimeoutDuration, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout %q: %w", writeTimeoutStr, err)
	}
	cfg.Server.WriteTimeout = writeTimeoutDuration

	idleTimeoutStr := getConfigValue(*idleTimeout, "STORYLINE_IDLE_TIMEOUT", "60s")
	idleTimeoutDuration, err := time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = idleTimeoutDuration

	// Expand and validate paths.
	if err := cfg.expandDataDir(); err != nil {
		return nil, fmt.Errorf("invalid data dir: %w", err)
	}
	if err := cfg.expandBooksDir(); err != nil {
		return nil, fmt.Errorf("invalid books dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "pretty" && c.Logger.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be pretty or json)", c.Logger.Format)
	}

	if c.Data.Dir == "" {
		return errors.New("data dir cannot be empty after expansion")
	}

	if c.Playback.DefaultRate <= 0 || c.Playback.DefaultRate > 4 {
		return fmt.Errorf("invalid default playback rate: %v (must be in (0, 4])", c.Playback.DefaultRate)
	}
	if c.Playback.DefaultVolume < 0 || c.Playback.DefaultVolume > 1 {
		return fmt.Errorf("invalid default volume: %v (must be in [0, 1])", c.Playback.DefaultVolume)
	}

	if c.Remote.UploadRPS <= 0 {
		return fmt.Errorf("invalid upload rps: %v (must be positive)", c.Remote.UploadRPS)
	}

	// Remote URL may be empty: the daemon runs offline and the sync
	// engine queues until a server is configured.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataDir expands ~ and makes the path absolute.
// Defaults to ~/.storyline.
func (c *Config) expandDataDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, ".storyline")

	expanded, err := expandPath(c.Data.Dir, defaultPath)
	if err != nil {
		return err
	}
	c.Data.Dir = expanded
	return nil
}

// expandBooksDir expands ~ and makes the path absolute.
// If empty, leaves it empty: local import stays disabled.
func (c *Config) expandBooksDir() error {
	if c.Library.BooksDir == "" {
		return nil
	}

	expanded, err := expandPath(c.Library.BooksDir, "")
	if err != nil {
		return err
	}
	c.Library.BooksDir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
