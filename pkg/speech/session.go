package speech

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/LingReader/pkg/events"
	"github.com/code-100-precent/LingReader/pkg/ogg"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/sectioner"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"go.uber.org/zap"
)

const (
	sourceLive   = "live"
	sourceCache  = "cache"
	sourceStream = "stream"
)

// Session is the handle of one Speak call. Its controls act only while it
// is the orchestrator's active session.
type Session struct {
	o      *Orchestrator
	id     string
	text   string
	caps   synthesizer.Capabilities
	cache  *SessionCache
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
	err    error

	// everything below is owned by the loop goroutine
	ended   bool
	paused  bool
	sec     *sectioner.Sectioner
	fetched int // sections pulled from the sectioner
	next    int // ordinal of the next section to play live
	current int // ordinal of the unit playing or last played

	// whole-blob playback, live or from the cache
	blobs    synthesizer.BlobSynthesizer
	ready    map[int][]byte
	inflight map[int]bool
	playing  bool
	playGen  int
	blob     *playback.Blob

	replaying bool
	cacheNext int

	// streaming
	streamer    synthesizer.StreamSynthesizer
	stream      synthesizer.Stream
	opening     bool
	pending     *sectionRef // pulled while the stream was opening
	reasm       *ogg.Reassembler
	sched       *playback.Scheduler
	turnGen     int
	turnIndex   int
	turnActive  bool
	turnCancel  context.CancelFunc
	turnAudio   []byte
	turnStarted time.Time
	turnPlayed  bool
}

func newSession(o *Orchestrator, id, text string, cache *SessionCache) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		o:        o,
		id:       id,
		text:     text,
		caps:     o.backend.Capabilities(),
		cache:    cache,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		ready:    make(map[int][]byte),
		inflight: make(map[int]bool),
	}
	s.sec = sectioner.New(s.caps.Profile, o.logger)
	s.sec.Initialize(text)

	if streamer, ok := o.backend.(synthesizer.StreamSynthesizer); ok && s.caps.Variant == synthesizer.VariantStreaming {
		s.streamer = streamer
		s.initStreaming()
	} else {
		s.blobs, _ = o.backend.(synthesizer.BlobSynthesizer)
	}
	s.setState(StateSpeaking)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Text() string { return s.text }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the session finishes, fails or is stopped
func (s *Session) Done() <-chan struct{} { return s.done }

// Err is the failure that ended the session; nil while running, after a
// normal finish and after a stop
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session ends or ctx is done
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) control(fn func(s *Session) error) error {
	var err error
	if cerr := s.o.call(func() {
		if s.ended || s.o.session != s {
			err = ErrSessionEnded
			return
		}
		err = fn(s)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) Pause() error        { return s.control((*Session).pause) }
func (s *Session) Resume() error       { return s.control((*Session).resume) }
func (s *Session) SkipBackward() error { return s.control((*Session).skipBackward) }
func (s *Session) SkipForward() error  { return s.control((*Session).skipForward) }
func (s *Session) Replay() error       { return s.control((*Session).replay) }

// Stop ends the session; stopping an ended session is a no-op
func (s *Session) Stop() error {
	err := s.control(func(s *Session) error {
		s.end(StateStopped, nil)
		return nil
	})
	if errors.Is(err, ErrSessionEnded) {
		return nil
	}
	return err
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if s.o.session == s || s.o.session == nil {
		global := st
		if global == StateStopped {
			global = StateIdle
		}
		s.o.state.Store(int32(global))
	}
	if prev != st {
		s.o.publish(events.TypeSpeechState, map[string]interface{}{
			"session": s.id,
			"state":   st.String(),
			"from":    prev.String(),
		})
	}
}

// goLive synthesizes from s.next onwards
func (s *Session) goLive() {
	if s.ended {
		return
	}
	if s.streamer == nil && !s.sec.HasMore() && len(s.inflight) == 0 && len(s.ready) == 0 {
		s.finish()
		return
	}
	if s.streamer != nil && !s.sec.HasMore() && s.pending == nil {
		s.finish()
		return
	}
	if err := s.o.backend.Validate(); err != nil {
		s.fail(err)
		return
	}
	if s.streamer != nil {
		s.nextTurn()
		return
	}
	s.advance()
}

// advance plays the next ready section or waits for it, keeping the
// prefetch window full
func (s *Session) advance() {
	if s.ended || s.playing || s.paused || s.replaying {
		return
	}
	for {
		audio, ok := s.ready[s.next]
		if !ok {
			s.pumpFetch()
			if s.ended {
				return
			}
			// blank sections become ready without a request
			if _, ok := s.ready[s.next]; ok {
				continue
			}
			break
		}
		delete(s.ready, s.next)
		idx := s.next
		s.next++
		if len(audio) == 0 {
			continue
		}
		if s.playBlob(idx, audio, sourceLive) {
			s.pumpFetch()
		}
		return
	}
	if len(s.inflight) == 0 && len(s.ready) == 0 && !s.sec.HasMore() {
		s.finish()
		return
	}
	s.setState(StateSpeaking)
}

func (s *Session) pumpFetch() {
	window := 1
	if s.playing {
		window = s.caps.PrefetchLimit
	}
	for !s.ended && s.sec.HasMore() && s.fetched < s.next+window {
		sec, _ := s.sec.Next()
		s.fetched++
		s.fetch(sec)
	}
}

func (s *Session) fetch(sec sectioner.Section) {
	if strings.TrimSpace(sec.Text) == "" {
		s.cache.Put(sec.Index, nil)
		s.ready[sec.Index] = nil
		return
	}
	s.inflight[sec.Index] = true
	ctx, backend, o := s.ctx, s.blobs, s.o
	started := time.Now()
	go func() {
		audio, err := backend.Synthesize(ctx, sec.Text)
		o.post(func() { s.onFetched(sec.Index, audio, err, time.Since(started)) })
	}()
}

func (s *Session) onFetched(idx int, audio []byte, err error, elapsed time.Duration) {
	if s.ended {
		return
	}
	delete(s.inflight, idx)
	engine := s.o.backend.Name()
	if err != nil {
		s.o.metrics.RecordSynthesis(engine, string(synthesizer.KindOf(err)), elapsed, 0)
		s.fail(err)
		return
	}
	s.o.metrics.RecordSynthesis(engine, "ok", elapsed, len(audio))
	s.cache.Put(idx, audio)
	if idx < s.next {
		return
	}
	s.ready[idx] = audio
	s.advance()
}

// playBlob starts a whole unit on the player. It reports false when the
// session failed instead.
func (s *Session) playBlob(idx int, audio []byte, source string) bool {
	blob, err := s.o.blobs.Put(audio, s.caps.MIME, playback.EstimateDuration(len(audio), s.caps.BytesPerSecond))
	if err != nil {
		s.fail(err)
		return false
	}
	done, err := s.o.player.Play(blob)
	if err != nil {
		s.o.blobs.Revoke(blob)
		s.fail(err)
		return false
	}
	s.playGen++
	gen := s.playGen
	s.playing = true
	s.blob = blob
	s.current = idx
	if source == sourceCache {
		s.setState(StatePlayingFromCache)
	} else {
		s.setState(StatePlaying)
	}
	s.o.metrics.RecordSegment(source)
	s.publishSection(idx, source)

	o := s.o
	go func() {
		<-done
		o.post(func() { s.onPlaybackEnded(gen) })
	}()
	return true
}

func (s *Session) onPlaybackEnded(gen int) {
	if s.ended || gen != s.playGen {
		return
	}
	s.playing = false
	s.o.blobs.Revoke(s.blob)
	s.blob = nil
	if s.replaying {
		s.playCached()
		return
	}
	s.advance()
}

func (s *Session) stopBlob() {
	s.playGen++
	if s.playing {
		_ = s.o.player.Stop()
		s.o.blobs.Revoke(s.blob)
		s.blob = nil
		s.playing = false
	}
}

// startCacheReplay plays cached sections from ordinal from. An in-flight
// streaming turn is abandoned; whole-blob fetches keep running.
func (s *Session) startCacheReplay(from int) {
	s.abortTurn()
	s.stopBlob()
	if s.paused {
		s.paused = false
		if s.sched != nil {
			_ = s.sched.Resume()
		}
	}
	s.replaying = true
	s.cacheNext = from
	s.playCached()
}

func (s *Session) playCached() {
	for s.cacheNext < s.cache.Len() {
		idx := s.cacheNext
		s.cacheNext++
		audio, _ := s.cache.Get(idx)
		if len(audio) == 0 {
			continue
		}
		s.playBlob(idx, audio, sourceCache)
		return
	}
	s.leaveCacheReplay()
}

// leaveCacheReplay continues live from the first section not cached
func (s *Session) leaveCacheReplay() {
	s.replaying = false
	if s.cache.Complete() {
		s.finish()
		return
	}
	n := s.cache.Len()
	for idx := range s.ready {
		if idx < n {
			delete(s.ready, idx)
		}
	}
	switch {
	case s.fetched < n:
		s.sec.Skip(n - s.fetched)
		s.fetched = n
	case s.fetched > n && s.streamer != nil:
		// the abandoned turn's section has to be pulled again
		s.sec.Initialize(s.text)
		s.sec.Skip(n)
		s.fetched = n
		s.next = n
		s.pending = nil
	}
	if s.next < n {
		s.next = n
	}
	s.goLive()
}

func (s *Session) finish() {
	if !s.sec.HasMore() && s.cache.Len() >= s.fetched && len(s.inflight) == 0 {
		s.cache.markComplete()
	}
	s.o.logger.Info("speech finished", zap.String("session", s.id), zap.Int("sections", s.fetched))
	s.end(StateIdle, nil)
}

// end releases everything the session holds. It runs once.
func (s *Session) end(final State, err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.cancel()
	s.abortTurn()
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.stopBlob()
	_ = s.o.player.Stop()
	s.o.blobs.RevokeAll()
	s.sec.Reset()
	s.ready = make(map[int][]byte)
	s.inflight = make(map[int]bool)
	s.err = err

	s.setState(final)
	if s.o.session == s {
		s.o.session = nil
	}
	s.o.metrics.SessionEnded()
	close(s.done)
}

func (s *Session) publishSection(idx int, source string) {
	s.o.publish(events.TypeSpeechSection, map[string]interface{}{
		"session": s.id,
		"index":   idx,
		"source":  source,
	})
}
