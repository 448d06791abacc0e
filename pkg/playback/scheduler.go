package playback

import (
	"go.uber.org/zap"
)

const (
	DefaultMinSegmentBytes = 16 * 1024
	DefaultMaxQueueBytes   = 8 * 1024 * 1024
)

// SegmentBuilder turns queued audio packets into one playable blob
type SegmentBuilder func(packets [][]byte) ([]byte, error)

// Dispatcher runs fn on the goroutine that owns the scheduler
type Dispatcher func(fn func())

type SchedulerConfig struct {
	MinSegmentBytes int
	MaxQueueBytes   int
	MIME            string
	BytesPerSecond  int // for duration estimates
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.MinSegmentBytes <= 0 {
		c.MinSegmentBytes = DefaultMinSegmentBytes
	}
	if c.MaxQueueBytes < c.MinSegmentBytes {
		c.MaxQueueBytes = DefaultMaxQueueBytes
		if c.MaxQueueBytes < c.MinSegmentBytes {
			c.MaxQueueBytes = c.MinSegmentBytes
		}
	}
	if c.MIME == "" {
		c.MIME = "audio/ogg"
	}
	return c
}

// Scheduler decides when queued streaming audio becomes a playback
// segment. At most one segment plays at a time. It is not safe for
// concurrent use: every method, including the completion callbacks routed
// through the Dispatcher, must run on the owner's goroutine.
type Scheduler struct {
	cfg      SchedulerConfig
	player   Player
	blobs    *BlobStore
	build    SegmentBuilder
	dispatch Dispatcher
	logger   *zap.Logger

	onComplete func()
	onSegment  func(b *Blob)
	onDrop     func(size int)

	queue    [][]byte
	queued   int
	complete bool
	finished bool
	playing  bool
	paused   bool
	current  *Blob
	gen      int
}

func NewScheduler(cfg SchedulerConfig, player Player, blobs *BlobStore, build SegmentBuilder, dispatch Dispatcher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		player:   player,
		blobs:    blobs,
		build:    build,
		dispatch: dispatch,
		logger:   logger.Named("scheduler"),
	}
}

// OnComplete is called once synthesis is complete and every queued
// byte has been played
func (s *Scheduler) OnComplete(fn func()) { s.onComplete = fn }

// OnSegment is called when a segment starts playing
func (s *Scheduler) OnSegment(fn func(b *Blob)) { s.onSegment = fn }

// OnDrop is called when a chunk is discarded because the queue is full
func (s *Scheduler) OnDrop(fn func(size int)) { s.onDrop = fn }

func (s *Scheduler) Playing() bool { return s.playing }
func (s *Scheduler) Paused() bool  { return s.paused }
func (s *Scheduler) Queued() int   { return s.queued }

// Enqueue adds an audio packet. It reports false when the queue is full
// and the packet was dropped.
func (s *Scheduler) Enqueue(chunk []byte) bool {
	if len(chunk) == 0 {
		return true
	}
	if s.queued+len(chunk) > s.cfg.MaxQueueBytes {
		s.logger.Warn("playback queue full, dropping chunk",
			zap.Int("chunk", len(chunk)),
			zap.Int("queued", s.queued),
			zap.Int("max", s.cfg.MaxQueueBytes))
		if s.onDrop != nil {
			s.onDrop(len(chunk))
		}
		return false
	}
	s.queue = append(s.queue, chunk)
	s.queued += len(chunk)
	s.Pump()
	return true
}

// MarkComplete records that no more audio will arrive for this section
func (s *Scheduler) MarkComplete() {
	s.complete = true
	s.Pump()
}

// Pump starts the next segment when the policy allows it
func (s *Scheduler) Pump() {
	if s.playing || s.paused || s.finished {
		return
	}
	if s.queued == 0 {
		if s.complete {
			s.finished = true
			if s.onComplete != nil {
				s.onComplete()
			}
		}
		return
	}

	take := s.take()
	if take == 0 {
		return
	}
	packets := s.queue[:take]
	s.queue = s.queue[take:]
	size := 0
	for _, p := range packets {
		size += len(p)
	}
	s.queued -= size

	s.playSegment(packets, size)
}

// take returns how many queued packets form the next segment, or 0 to wait
func (s *Scheduler) take() int {
	minSize := s.cfg.MinSegmentBytes
	if s.queued < minSize {
		if s.complete {
			return len(s.queue)
		}
		return 0
	}
	n, size := 0, 0
	for n < len(s.queue) && size < minSize {
		size += len(s.queue[n])
		n++
	}
	if s.queued-size < minSize {
		if s.complete {
			return len(s.queue)
		}
		// a remainder below the minimum would starve the next segment
		return 0
	}
	return n
}

func (s *Scheduler) playSegment(packets [][]byte, size int) {
	data, err := s.build(packets)
	if err != nil {
		s.logger.Error("build segment failed", zap.Int("bytes", size), zap.Error(err))
		s.Pump()
		return
	}
	blob, err := s.blobs.Put(data, s.cfg.MIME, EstimateDuration(size, s.cfg.BytesPerSecond))
	if err != nil {
		s.logger.Error("store segment failed", zap.Error(err))
		s.Pump()
		return
	}
	done, err := s.player.Play(blob)
	if err != nil {
		s.logger.Error("play segment failed", zap.Error(err))
		s.blobs.Revoke(blob)
		s.Pump()
		return
	}

	s.gen++
	gen := s.gen
	s.playing = true
	s.current = blob
	s.logger.Debug("segment started", zap.String("blob", blob.ID), zap.Int("bytes", size), zap.Int("queued", s.queued))
	if s.onSegment != nil {
		s.onSegment(blob)
	}
	go func() {
		<-done
		s.dispatch(func() { s.segmentEnded(gen) })
	}()
}

func (s *Scheduler) segmentEnded(gen int) {
	if gen != s.gen || !s.playing {
		return
	}
	s.playing = false
	s.blobs.Revoke(s.current)
	s.current = nil
	s.Pump()
}

// Pause suspends the active segment and holds back new ones
func (s *Scheduler) Pause() error {
	if s.paused {
		return nil
	}
	s.paused = true
	if s.playing {
		return s.player.Pause()
	}
	return nil
}

func (s *Scheduler) Resume() error {
	if !s.paused {
		return nil
	}
	s.paused = false
	if s.playing {
		return s.player.Resume()
	}
	s.Pump()
	return nil
}

// Reset stops playback, revokes the active blob and clears the queue
func (s *Scheduler) Reset() {
	s.gen++
	if s.playing {
		_ = s.player.Stop()
	}
	s.blobs.Revoke(s.current)
	s.current = nil
	s.queue = nil
	s.queued = 0
	s.complete = false
	s.finished = false
	s.playing = false
	s.paused = false
}
