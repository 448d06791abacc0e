package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
	Daily      bool   `env:"LOG_DAILY"`
}

// Lg is the process logger. It stays a no-op until Init runs so that
// packages and tests can log unconditionally.
var Lg = zap.NewNop()

var levelColor = map[zapcore.Level]string{
	zapcore.DebugLevel:  "\x1b[35m",
	zapcore.InfoLevel:   "\x1b[36m",
	zapcore.WarnLevel:   "\x1b[33m",
	zapcore.ErrorLevel:  "\x1b[31m",
	zapcore.DPanicLevel: "\x1b[31m",
	zapcore.PanicLevel:  "\x1b[31m",
	zapcore.FatalLevel:  "\x1b[31m",
}

// Init 初始化logger
// An empty Filename disables the rotating file core; dev mode always tees
// to the terminal.
func Init(cfg *LogConfig, mode string) error {
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return err
	}

	var cores []zapcore.Core
	if cfg.Filename != "" {
		writer := getLogWriter(cfg.Filename, cfg.MaxSize, cfg.MaxBackups, cfg.MaxAge, cfg.Daily)
		cores = append(cores, zapcore.NewCore(getEncoder(), writer, level))
	}
	if isDev(mode) || cfg.Filename == "" {
		console := getConsoleEncoder()
		high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && l >= *level
		})
		low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l < zapcore.ErrorLevel && l >= *level
		})
		cores = append(cores,
			zapcore.NewCore(console, zapcore.Lock(os.Stdout), low),
			zapcore.NewCore(console, zapcore.Lock(os.Stderr), high),
		)
	}

	Lg = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(Lg)

	Info("init logger success", zap.String("level", level.String()), zap.String("mode", mode))
	return nil
}

func isDev(mode string) bool {
	m := strings.ToLower(mode)
	return m == "dev" || m == "development"
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// getConsoleEncoder 终端输出，带色彩
func getConsoleEncoder() zapcore.Encoder {
	c := zap.NewDevelopmentEncoderConfig()
	c.TimeKey = "time"
	c.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("2006-01-02 15:04:05.000") + "\x1b[0m")
	}
	c.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		color, ok := levelColor[l]
		if !ok {
			color = "\x1b[0m"
		}
		enc.AppendString(color + "[" + l.CapitalString() + "]\x1b[0m")
	}
	c.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + caller.TrimmedPath() + "\x1b[0m")
	}
	return zapcore.NewConsoleEncoder(c)
}

func getLogWriter(filename string, maxSize, maxBackup, maxAge int, daily bool) zapcore.WriteSyncer {
	if daily {
		filename = GetDailyLogFilename(filename)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxBackups: maxBackup,
		MaxAge:     maxAge,
		LocalTime:  true,
	})
}

// Named returns a child of the process logger, or of l when it is non-nil.
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = Lg
	}
	return l.Named(name)
}

func Info(msg string, fields ...zap.Field) {
	Lg.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Lg.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Lg.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Lg.Debug(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Lg.Fatal(msg, fields...)
}

// Sync 刷新缓冲区
func Sync() {
	_ = Lg.Sync()
}

// GetDailyLogFilename 获取按日期分割的日志文件名
func GetDailyLogFilename(baseFilename string) string {
	ext := filepath.Ext(baseFilename)
	base := baseFilename[:len(baseFilename)-len(ext)]
	return base + "-" + time.Now().Format("2006-01-02") + ext
}
