package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/LingReader/pkg/events"
	"github.com/code-100-precent/LingReader/pkg/i18n"
	"github.com/code-100-precent/LingReader/pkg/metrics"
	"github.com/code-100-precent/LingReader/pkg/notification"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"
)

var (
	ErrClosed        = errors.New("speech: orchestrator closed")
	ErrEmptyText     = errors.New("speech: nothing to read")
	ErrNoSession     = errors.New("speech: no active session")
	ErrSessionEnded  = errors.New("speech: session has ended")
	ErrNothingCached = errors.New("speech: nothing cached to replay")
)

const sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Config tunes the pipeline
type Config struct {
	// SkipInterval is how far skip backward and forward move
	SkipInterval       time.Duration
	MinSegmentBytes    int
	MaxQueueBytes      int
	MaxReassemblyBytes int
	// StrictOggCRC writes RFC 3533 checksums into rebuilt pages
	StrictOggCRC bool
}

func (c Config) withDefaults() Config {
	if c.SkipInterval <= 0 {
		c.SkipInterval = 10 * time.Second
	}
	return c
}

// Options wires an Orchestrator. Backend and Player are required.
type Options struct {
	Backend    synthesizer.Backend
	Player     playback.Player
	Blobs      *playback.BlobStore
	Notifier   notification.Sink
	Translator i18n.Translator
	Metrics    *metrics.Metrics
	Bus        *events.EventBus
	Logger     *zap.Logger
	Config     Config
}

// Orchestrator sequences sectioning, synthesis and playback for one
// backend. Every state change runs on its loop goroutine; network and
// playback goroutines post their results back to it.
type Orchestrator struct {
	backend  synthesizer.Backend
	player   playback.Player
	blobs    *playback.BlobStore
	notifier notification.Sink
	tr       i18n.Translator
	metrics  *metrics.Metrics
	bus      *events.EventBus
	logger   *zap.Logger
	cfg      Config

	tasks     chan func()
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	// loop-owned
	session *Session
	cache   *SessionCache
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Backend == nil {
		return nil, errors.New("speech: backend is required")
	}
	if opts.Player == nil {
		return nil, errors.New("speech: player is required")
	}
	switch opts.Backend.(type) {
	case synthesizer.BlobSynthesizer, synthesizer.StreamSynthesizer:
	default:
		return nil, errors.New("speech: backend can neither synthesize blobs nor stream")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("speech")
	if opts.Blobs == nil {
		opts.Blobs = playback.NewBlobStore("", logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NewLogSink(logger)
	}
	if opts.Translator == nil {
		opts.Translator = i18n.New("en")
	}
	o := &Orchestrator{
		backend:  opts.Backend,
		player:   opts.Player,
		blobs:    opts.Blobs,
		notifier: opts.Notifier,
		tr:       opts.Translator,
		metrics:  opts.Metrics,
		bus:      opts.Bus,
		logger:   logger,
		cfg:      opts.Config.withDefaults(),
		tasks:    make(chan func(), 256),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go o.run()
	return o, nil
}

func (o *Orchestrator) run() {
	defer close(o.exited)
	for {
		select {
		case fn := <-o.tasks:
			fn()
		case <-o.quit:
			return
		}
	}
}

// post queues fn on the loop. It must not be called from the loop itself.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case o.tasks <- fn:
		return true
	case <-o.quit:
		return false
	}
}

// call runs fn on the loop and waits for it
func (o *Orchestrator) call(fn func()) error {
	done := make(chan struct{})
	if !o.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-o.exited:
		return ErrClosed
	}
}

// Close stops the current session and ends the loop
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		_ = o.call(func() {
			if o.session != nil {
				o.session.end(StateStopped, nil)
			}
		})
		close(o.quit)
		<-o.exited
	})
	return nil
}

// State is the state of the current session, or idle
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) Backend() synthesizer.Backend {
	return o.backend
}

// Speak stops whatever is playing and reads text. When text, voice and
// model match the previous call, the cached audio replays without new
// synthesis requests. Cancelling ctx stops the session.
func (o *Orchestrator) Speak(ctx context.Context, text string) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	var s *Session
	if err := o.call(func() { s = o.speak(text) }); err != nil {
		return nil, err
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
		go func() {
			<-s.Done()
			stop()
		}()
	}
	return s, nil
}

func (o *Orchestrator) speak(text string) *Session {
	if o.session != nil {
		o.session.end(StateStopped, nil)
	}
	id, err := gonanoid.Generate(sessionAlphabet, 12)
	if err != nil {
		id = time.Now().Format("150405.000000")
	}
	key := o.backend.CacheKey(text)
	reuse := o.cache != nil && o.cache.Key() == key && o.cache.Len() > 0
	o.metrics.RecordCacheLookup("session", reuse)
	if !reuse {
		o.cache = newSessionCache(key, text)
	}

	s := newSession(o, id, text, o.cache)
	o.session = s
	o.metrics.SessionStarted(o.backend.Name())
	o.logger.Info("speak",
		zap.String("session", id),
		zap.String("engine", o.backend.Name()),
		zap.Int("chars", len([]rune(text))),
		zap.Bool("cached", reuse))

	if reuse {
		s.startCacheReplay(0)
	} else {
		s.goLive()
	}
	return s
}

// current runs fn against the active session
func (o *Orchestrator) current(fn func(s *Session) error) error {
	var err error
	if cerr := o.call(func() {
		if o.session == nil {
			err = ErrNoSession
			return
		}
		err = fn(o.session)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (o *Orchestrator) Pause() error  { return o.current((*Session).pause) }
func (o *Orchestrator) Resume() error { return o.current((*Session).resume) }

// Stop ends the active session; it is a no-op when nothing is active
func (o *Orchestrator) Stop() error {
	err := o.current(func(s *Session) error {
		s.end(StateStopped, nil)
		return nil
	})
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

func (o *Orchestrator) SkipBackward() error { return o.current((*Session).skipBackward) }
func (o *Orchestrator) SkipForward() error  { return o.current((*Session).skipForward) }

// Replay restarts the cached audio from the first section. With no active
// session it starts a new one over the cached text.
func (o *Orchestrator) Replay() (*Session, error) {
	var (
		s   *Session
		err error
	)
	if cerr := o.call(func() {
		if o.session != nil {
			s = o.session
			err = s.replay()
			return
		}
		if o.cache == nil || o.cache.Len() == 0 {
			err = ErrNothingCached
			return
		}
		s = o.speak(o.cache.Text())
	}); cerr != nil {
		return nil, cerr
	}
	return s, err
}

// Session returns the active session, if any
func (o *Orchestrator) Session() *Session {
	var s *Session
	_ = o.call(func() { s = o.session })
	return s
}

func (o *Orchestrator) publish(eventType string, data map[string]interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{Type: eventType, Source: "speech", Data: data})
}
