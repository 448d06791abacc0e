package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/code-100-precent/LingReader/cmd/bootstrap"
	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/code-100-precent/LingReader/pkg/logger"
	"github.com/code-100-precent/LingReader/pkg/speech"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	flagEngine string
	flagText   string
	flagFile   string
	flagServe  bool
	flagAddr   string
	flagPlayer string
	flagBanner string
)

func main() {
	flag.StringVar(&flagEngine, "engine", "", "synthesis engine: azure, openai, compat, local (overrides SPEECH_ENGINE)")
	flag.StringVar(&flagText, "text", "", "text to read aloud")
	flag.StringVar(&flagFile, "f", "", "read the text from a file; - reads stdin")
	flag.BoolVar(&flagServe, "serve", false, "serve the control API instead of reading once")
	flag.StringVar(&flagAddr, "addr", "", "listen address for -serve (overrides ADDR)")
	flag.StringVar(&flagPlayer, "player", "", "audio output: command or clock (overrides PLAYBACK_PLAYER)")
	flag.StringVar(&flagBanner, "banner", "", "banner file printed at startup")
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lingreader:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.GlobalConfig
	if flagEngine != "" {
		cfg.Speech.Engine = strings.ToLower(flagEngine)
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagPlayer != "" {
		cfg.Playback.Player = flagPlayer
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		return err
	}
	defer logger.Sync()

	if flagBanner != "" {
		if err := bootstrap.PrintBannerFromFile(flagBanner); err != nil {
			logger.Warn("print banner failed", zap.Error(err))
		}
	}
	bootstrap.LogConfigInfo()

	app, err := bootstrap.Build(cfg, config.NewEnvStore(), nil, logger.Lg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagServe {
		return serve(ctx, app)
	}
	text, err := readText()
	if err != nil {
		return err
	}
	return speakOnce(ctx, app.Orchestrator, text)
}

func readText() (string, error) {
	switch {
	case flagText != "":
		return flagText, nil
	case flagFile == "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	case flagFile != "":
		b, err := os.ReadFile(flagFile)
		return string(b), err
	case flag.NArg() > 0:
		return strings.Join(flag.Args(), " "), nil
	default:
		return "", errors.New("nothing to read: pass -text, -f or arguments, or use -serve")
	}
}

// speakOnce reads text and returns when it has been read, failed, or ctx
// was cancelled
func speakOnce(ctx context.Context, o *speech.Orchestrator, text string) error {
	s, err := o.Speak(ctx, text)
	if err != nil {
		return err
	}
	<-s.Done()
	return s.Err()
}

func serve(ctx context.Context, app *bootstrap.App) error {
	gin.SetMode(ginMode(app.Config.Server.Mode))
	srv := &http.Server{
		Addr:              app.Config.Server.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("control api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Orchestrator.Stop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ginMode(mode string) string {
	switch strings.ToLower(mode) {
	case "dev", "development":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
