package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/LingReader/pkg/cache"
	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/code-100-precent/LingReader/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:          ":7080",
			Mode:          "test",
			APIPrefix:     "/api",
			MonitorPrefix: "/metrics",
		},
		Log: logger.LogConfig{
			Level:      "info",
			Filename:   "./test.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
		Cache: cache.Config{Type: cache.KindLocal, Local: cache.LocalConfig{MaxSize: 8}},
		Speech: config.SpeechConfig{
			Engine:          "openai",
			Language:        "en",
			PrefetchLimit:   3,
			MinSegmentBytes: 1024,
			MaxQueueBytes:   4096,
			SkipInterval:    10 * time.Second,
			AckTimeout:      5 * time.Second,
			RequestTimeout:  time.Minute,
			CacheEnabled:    true,
			CacheTTL:        time.Hour,
		},
		Playback: config.PlaybackConfig{Player: "clock"},
	}
}

func TestLogConfigInfo(t *testing.T) {
	originalConfig := config.GlobalConfig
	defer func() {
		config.GlobalConfig = originalConfig
	}()
	config.GlobalConfig = testConfig()

	// Capture logs by replacing the global logger
	core, recorded := observer.New(zapcore.InfoLevel)
	originalLogger := logger.Lg
	logger.Lg = zap.New(core)
	defer func() {
		logger.Lg = originalLogger
	}()

	LogConfigInfo()

	logMessages := make([]string, 0, recorded.Len())
	for _, entry := range recorded.All() {
		logMessages = append(logMessages, entry.Message)
	}
	for _, expected := range []string{
		"system config load finished",
		"server config",
		"log config",
		"speech config",
		"cache config",
		"playback config",
	} {
		assert.Contains(t, logMessages, expected, "Should contain log message: %s", expected)
	}

	speechEntries := recorded.FilterMessage("speech config").All()
	require.Len(t, speechEntries, 1)
	fields := speechEntries[0].ContextMap()
	assert.Equal(t, "openai", fields["engine"])
	assert.Equal(t, int64(3), fields["prefetch_limit"])
}

func TestLogConfigInfo_EmptyConfig(t *testing.T) {
	originalConfig := config.GlobalConfig
	defer func() {
		config.GlobalConfig = originalConfig
	}()
	config.GlobalConfig = &config.Config{}

	core, recorded := observer.New(zapcore.InfoLevel)
	originalLogger := logger.Lg
	logger.Lg = zap.New(core)
	defer func() {
		logger.Lg = originalLogger
	}()

	// Should not panic with empty config
	assert.NotPanics(t, func() {
		LogConfigInfo()
	})
	assert.Greater(t, recorded.Len(), 0)
}

func TestPrintBannerFromFile(t *testing.T) {
	// Create temporary banner file
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "banner.txt")

	bannerContent := `
  ╔══════════════════════════════════════╗
  ║            Test Banner               ║
  ║         Welcome to LingReader          ║
  ╚══════════════════════════════════════╝
`
	err := os.WriteFile(bannerPath, []byte(bannerContent), 0644)
	require.NoError(t, err)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Call function
	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)

	// Restore stdout
	w.Close()
	os.Stdout = oldStdout

	// Read captured output
	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	// Verify output contains banner content (without ANSI codes)
	assert.Contains(t, output, "Test Banner")
	assert.Contains(t, output, "Welcome to LingReader")

	// Verify ANSI color codes are present
	assert.Contains(t, output, "\x1b[38;5;")
	assert.Contains(t, output, "\x1b[0m")
}

func TestPrintBannerFromFile_FileNotFound(t *testing.T) {
	err := PrintBannerFromFile("/nonexistent/banner.txt")
	assert.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestPrintBannerFromFile_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "empty.txt")

	err := os.WriteFile(bannerPath, []byte(""), 0644)
	require.NoError(t, err)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)

	w.Close()
	os.Stdout = oldStdout

	// Read output
	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	// Should have at least one line (empty line)
	assert.Contains(t, output, "\x1b[0m")
}

func TestPrintBannerFromFile_SingleLine(t *testing.T) {
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "single.txt")

	err := os.WriteFile(bannerPath, []byte("Single Line Banner"), 0644)
	require.NoError(t, err)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	assert.Contains(t, output, "Single Line Banner")
}

func TestPrintBannerFromFile_MultipleLines(t *testing.T) {
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "multi.txt")

	bannerContent := strings.Join([]string{
		"Line 1",
		"Line 2",
		"Line 3",
		"Line 4",
		"Line 5",
		"Line 6",
		"Line 7", // More than 6 lines to test color cycling
	}, "\n")

	err := os.WriteFile(bannerPath, []byte(bannerContent), 0644)
	require.NoError(t, err)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	// Verify all lines are present
	for i := 1; i <= 7; i++ {
		assert.Contains(t, output, "Line "+string(rune('0'+i)))
	}

	// Verify different colors are used (color cycling)
	assert.Contains(t, output, "\x1b[38;5;165m") // First color
	assert.Contains(t, output, "\x1b[38;5;189m") // Second color
}

func TestPrintBannerFromFile_LargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "large.txt")

	// Create a large banner with many lines
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "Banner line "+string(rune('0'+i%10)))
	}
	bannerContent := strings.Join(lines, "\n")

	err := os.WriteFile(bannerPath, []byte(bannerContent), 0644)
	require.NoError(t, err)

	// Should handle large files without issues
	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)
}

func TestPrintBannerFromFile_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "noperm.txt")

	err := os.WriteFile(bannerPath, []byte("test"), 0644)
	require.NoError(t, err)

	// Remove read permission
	err = os.Chmod(bannerPath, 0000)
	require.NoError(t, err)

	defer os.Chmod(bannerPath, 0644) // Restore for cleanup

	err = PrintBannerFromFile(bannerPath)
	assert.Error(t, err)
}

// Benchmark tests
func BenchmarkLogConfigInfo(b *testing.B) {
	originalConfig := config.GlobalConfig
	originalLogger := logger.Lg
	defer func() {
		config.GlobalConfig = originalConfig
		logger.Lg = originalLogger
	}()

	config.GlobalConfig = testConfig()
	logger.Lg = zap.NewNop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LogConfigInfo()
	}
}

func BenchmarkPrintBannerFromFile(b *testing.B) {
	tmpDir := b.TempDir()
	bannerPath := filepath.Join(tmpDir, "bench_banner.txt")

	bannerContent := strings.Repeat("Benchmark Banner Line\n", 10)
	err := os.WriteFile(bannerPath, []byte(bannerContent), 0644)
	if err != nil {
		b.Fatal(err)
	}

	// Redirect stdout to discard output during benchmark
	oldStdout := os.Stdout
	os.Stdout, _ = os.Open(os.DevNull)
	defer func() { os.Stdout = oldStdout }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := PrintBannerFromFile(bannerPath)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Test color cycling specifically
func TestPrintBannerFromFile_ColorCycling(t *testing.T) {
	tmpDir := t.TempDir()
	bannerPath := filepath.Join(tmpDir, "colors.txt")

	// Create exactly 12 lines to test color cycling (6 colors * 2)
	lines := make([]string, 12)
	for i := 0; i < 12; i++ {
		lines[i] = "Color test line " + string(rune('A'+i))
	}
	bannerContent := strings.Join(lines, "\n")

	err := os.WriteFile(bannerPath, []byte(bannerContent), 0644)
	require.NoError(t, err)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err = PrintBannerFromFile(bannerPath)
	assert.NoError(t, err)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	// Verify that colors cycle (first and seventh line should have same color)
	lines = strings.Split(output, "\n")
	if len(lines) >= 12 {
		// Extract color codes from first and seventh lines
		firstLineColor := extractColorCode(lines[0])
		seventhLineColor := extractColorCode(lines[6])

		assert.Equal(t, firstLineColor, seventhLineColor, "Colors should cycle every 6 lines")
	}
}

// Helper function to extract color code from a line
func extractColorCode(line string) string {
	start := strings.Index(line, "\x1b[38;5;")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start:], "m")
	if end == -1 {
		return ""
	}
	return line[start : start+end+1]
}
