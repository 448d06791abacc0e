package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/code-100-precent/LingReader/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information. Secrets live in
// the Store and are never printed.
func LogConfigInfo() {
	cfg := config.GlobalConfig
	logger.Info("system config load finished")
	logger.Info("server config",
		zap.String("addr", cfg.Server.Addr),
		zap.String("mode", cfg.Server.Mode),
		zap.String("api_prefix", cfg.Server.APIPrefix),
		zap.String("monitor_prefix", cfg.Server.MonitorPrefix),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)

	logger.Info("speech config",
		zap.String("engine", cfg.Speech.Engine),
		zap.String("ui_language", cfg.Speech.Language),
		zap.Int("prefetch_limit", cfg.Speech.PrefetchLimit),
		zap.Int("min_segment_bytes", cfg.Speech.MinSegmentBytes),
		zap.Int("max_queue_bytes", cfg.Speech.MaxQueueBytes),
		zap.Duration("skip_interval", cfg.Speech.SkipInterval),
		zap.Duration("ack_timeout", cfg.Speech.AckTimeout),
		zap.Bool("cache_enabled", cfg.Speech.CacheEnabled),
		zap.Bool("strict_ogg_crc", cfg.Speech.StrictOggCRC),
	)

	logger.Info("cache config",
		zap.String("type", cfg.Cache.Type),
		zap.String("redis_addr", cfg.Cache.Redis.Addr),
		zap.Int("local_max_size", cfg.Cache.Local.MaxSize),
	)

	logger.Info("playback config",
		zap.String("player", cfg.Playback.Player),
		zap.String("command", cfg.Playback.Command),
		zap.String("blob_dir", cfg.Playback.BlobDir),
	)
}

// PrintBannerFromFile Read file and print
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
