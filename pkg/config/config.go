package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/code-100-precent/LingReader/pkg/cache"
	"github.com/code-100-precent/LingReader/pkg/logger"
	"github.com/code-100-precent/LingReader/pkg/utils"
)

// Config main configuration structure
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Log      logger.LogConfig `mapstructure:"log"`
	Cache    cache.Config     `mapstructure:"cache"`
	Speech   SpeechConfig     `mapstructure:"speech"`
	Playback PlaybackConfig   `mapstructure:"playback"`
}

// ServerConfig control API configuration
type ServerConfig struct {
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`
}

// SpeechConfig tunes the synthesis pipeline. Backend credentials, voices
// and endpoints are read through a Store by their namespaced keys.
type SpeechConfig struct {
	Engine             string        `env:"SPEECH_ENGINE"`
	Language           string        `env:"SPEECH_UI_LANGUAGE"`
	PrefetchLimit      int           `env:"SPEECH_PREFETCH_LIMIT"`
	MinSegmentBytes    int           `env:"SPEECH_MIN_SEGMENT_BYTES"`
	MaxQueueBytes      int           `env:"SPEECH_MAX_QUEUE_BYTES"`
	MaxReassemblyBytes int           `env:"SPEECH_MAX_REASSEMBLY_BYTES"`
	SkipInterval       time.Duration `env:"SPEECH_SKIP_INTERVAL"`
	AckTimeout         time.Duration `env:"SPEECH_ACK_TIMEOUT"`
	RequestTimeout     time.Duration `env:"SPEECH_REQUEST_TIMEOUT"`
	CacheEnabled       bool          `env:"SPEECH_CACHE_ENABLED"`
	CacheTTL           time.Duration `env:"SPEECH_CACHE_TTL"`
	StrictOggCRC       bool          `env:"SPEECH_STRICT_OGG_CRC"`
}

// PlaybackConfig selects the audio output
type PlaybackConfig struct {
	Player  string `env:"PLAYBACK_PLAYER"`
	Command string `env:"PLAYBACK_COMMAND"`
	BlobDir string `env:"PLAYBACK_BLOB_DIR"`
}

var GlobalConfig *Config

func Load() error {
	// 1. Load .env file based on environment (missing files fall back to defaults)
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. Load global configuration
	GlobalConfig = &Config{
		Server: ServerConfig{
			Addr:          getStringOrDefault("ADDR", ":7080"),
			Mode:          getStringOrDefault("MODE", "development"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Cache: loadCacheConfig(),
		Speech: SpeechConfig{
			Engine:             strings.ToLower(getStringOrDefault("SPEECH_ENGINE", "openai")),
			Language:           getStringOrDefault("SPEECH_UI_LANGUAGE", "en"),
			PrefetchLimit:      getIntOrDefault("SPEECH_PREFETCH_LIMIT", 2),
			MinSegmentBytes:    getIntOrDefault("SPEECH_MIN_SEGMENT_BYTES", 16*1024),
			MaxQueueBytes:      getIntOrDefault("SPEECH_MAX_QUEUE_BYTES", 8*1024*1024),
			MaxReassemblyBytes: getIntOrDefault("SPEECH_MAX_REASSEMBLY_BYTES", 1024*1024),
			SkipInterval:       parseDuration(utils.GetEnv("SPEECH_SKIP_INTERVAL"), 10*time.Second),
			AckTimeout:         parseDuration(utils.GetEnv("SPEECH_ACK_TIMEOUT"), 5*time.Second),
			RequestTimeout:     parseDuration(utils.GetEnv("SPEECH_REQUEST_TIMEOUT"), 60*time.Second),
			CacheEnabled:       getBoolOrDefault("SPEECH_CACHE_ENABLED", true),
			CacheTTL:           parseDuration(utils.GetEnv("SPEECH_CACHE_TTL"), 24*time.Hour),
			StrictOggCRC:       getBoolOrDefault("SPEECH_STRICT_OGG_CRC", false),
		},
		Playback: PlaybackConfig{
			Player:  getStringOrDefault("PLAYBACK_PLAYER", "command"),
			Command: getStringOrDefault("PLAYBACK_COMMAND", "ffplay -nodisp -autoexit -loglevel quiet -ss {offset} {file}"),
			BlobDir: getStringOrDefault("PLAYBACK_BLOB_DIR", os.TempDir()),
		},
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Speech.Engine == "" {
		return errors.New("speech engine is required")
	}
	if c.Speech.PrefetchLimit < 0 {
		return errors.New("speech prefetch limit must not be negative")
	}
	if c.Speech.MinSegmentBytes <= 0 {
		return errors.New("speech min segment bytes must be positive")
	}
	if c.Speech.MaxQueueBytes < c.Speech.MinSegmentBytes {
		return errors.New("speech max queue bytes must be at least the min segment size")
	}
	switch c.Playback.Player {
	case "clock", "command":
	default:
		return errors.New("playback player must be clock or command")
	}
	if c.Playback.Player == "command" && c.Playback.Command == "" {
		return errors.New("playback command is required for the command player")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", cache.KindLocal),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  parseDuration(utils.GetEnv("REDIS_DIAL_TIMEOUT"), 5*time.Second),
			ReadTimeout:  parseDuration(utils.GetEnv("REDIS_READ_TIMEOUT"), 3*time.Second),
			WriteTimeout: parseDuration(utils.GetEnv("REDIS_WRITE_TIMEOUT"), 3*time.Second),
			KeyPrefix:    getStringOrDefault("REDIS_KEY_PREFIX", "lingreader:audio:"),
		},
		Local: cache.LocalConfig{
			MaxSize:           getIntOrDefault("LOCAL_CACHE_MAX_SIZE", 256),
			DefaultExpiration: parseDuration(utils.GetEnv("LOCAL_CACHE_DEFAULT_EXPIRATION"), time.Hour),
			CleanupInterval:   parseDuration(utils.GetEnv("LOCAL_CACHE_CLEANUP_INTERVAL"), 10*time.Minute),
		},
	}
}
