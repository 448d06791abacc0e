package bootstrap

import (
	"fmt"

	handlers "github.com/code-100-precent/LingReader/internal/handler"
	"github.com/code-100-precent/LingReader/pkg/cache"
	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/code-100-precent/LingReader/pkg/events"
	"github.com/code-100-precent/LingReader/pkg/i18n"
	"github.com/code-100-precent/LingReader/pkg/metrics"
	"github.com/code-100-precent/LingReader/pkg/middleware"
	"github.com/code-100-precent/LingReader/pkg/notification"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/speech"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// App is a fully wired reader: one backend, one player, one orchestrator
type App struct {
	Config       *config.Config
	Backend      synthesizer.Backend
	Orchestrator *speech.Orchestrator
	Metrics      *metrics.Metrics
	Bus          *events.EventBus
	Notices      *notification.Recorder
	Cache        cache.Cache
	Logger       *zap.Logger
}

// Build wires every component from cfg. Backend settings are read from
// store on each request, so they may change while the app runs.
func Build(cfg *config.Config, store config.Store, player playback.Player, lg *zap.Logger) (*App, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	app := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Bus:     events.NewEventBus(lg),
		Notices: &notification.Recorder{},
		Logger:  lg,
	}

	backend, err := synthesizer.New(cfg.Speech.Engine, store, synthesizer.Options{
		AckTimeout:     cfg.Speech.AckTimeout,
		RequestTimeout: cfg.Speech.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	if ob, ok := backend.(*synthesizer.OpenAIBackend); ok && cfg.Speech.PrefetchLimit > 0 {
		ob.SetPrefetchLimit(cfg.Speech.PrefetchLimit)
	}
	if blob, ok := backend.(synthesizer.BlobSynthesizer); ok && cfg.Speech.CacheEnabled {
		c, err := cache.NewCacheWithOptions(cfg.Cache, cache.DefaultOptions())
		if err != nil {
			lg.Warn("audio cache disabled", zap.String("type", cfg.Cache.Type), zap.Error(err))
		} else {
			app.Cache = c
			backend = synthesizer.NewCachedBackend(blob, c, cfg.Speech.CacheTTL, app.Metrics)
		}
	}
	app.Backend = backend

	if player == nil {
		player, err = NewPlayer(cfg.Playback, lg)
		if err != nil {
			app.closeCache()
			return nil, err
		}
	}

	app.Orchestrator, err = speech.New(speech.Options{
		Backend:    backend,
		Player:     player,
		Blobs:      playback.NewBlobStore(cfg.Playback.BlobDir, lg),
		Notifier:   notification.Multi{notification.NewLogSink(lg), notification.NewBusSink(app.Bus), app.Notices},
		Translator: i18n.New(cfg.Speech.Language),
		Metrics:    app.Metrics,
		Bus:        app.Bus,
		Logger:     lg,
		Config: speech.Config{
			SkipInterval:       cfg.Speech.SkipInterval,
			MinSegmentBytes:    cfg.Speech.MinSegmentBytes,
			MaxQueueBytes:      cfg.Speech.MaxQueueBytes,
			MaxReassemblyBytes: cfg.Speech.MaxReassemblyBytes,
			StrictOggCRC:       cfg.Speech.StrictOggCRC,
		},
	})
	if err != nil {
		app.closeCache()
		return nil, err
	}
	return app, nil
}

// NewPlayer picks the audio output named by cfg.Player
func NewPlayer(cfg config.PlaybackConfig, lg *zap.Logger) (playback.Player, error) {
	switch cfg.Player {
	case "clock":
		return playback.NewClockPlayer(), nil
	case "command", "":
		p, err := playback.NewCommandPlayer(cfg.Command, lg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown player %q", cfg.Player)
	}
}

// Router returns the control API engine
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CorsMiddleware(), middleware.LoggerMiddleware(a.Logger))
	handlers.NewHandlers(a.Orchestrator, a.Metrics, a.Notices, a.Logger).
		Register(r, a.Config.Server.APIPrefix, a.Config.Server.MonitorPrefix)
	return r
}

// Close stops playback and releases the backend and cache
func (a *App) Close() error {
	err := a.Orchestrator.Close()
	if cerr := a.Backend.Close(); err == nil {
		err = cerr
	}
	a.closeCache()
	return err
}

func (a *App) closeCache() {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Close(); err != nil {
		a.Logger.Warn("close audio cache", zap.Error(err))
	}
}
