package speech

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/code-100-precent/LingReader/pkg/ogg"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"go.uber.org/zap"
)

func (s *Session) initStreaming() {
	o := s.o
	checksum := ogg.ChecksumIEEE
	if o.cfg.StrictOggCRC {
		checksum = ogg.ChecksumRFC3533
	}
	s.reasm = ogg.NewReassembler(
		ogg.WithMaxBuffer(o.cfg.MaxReassemblyBytes),
		ogg.WithChecksum(checksum),
		ogg.WithBytesPerSecond(s.caps.BytesPerSecond),
		ogg.WithLogger(o.logger),
	)

	build := func(packets [][]byte) ([]byte, error) {
		return bytes.Join(packets, nil), nil
	}
	if s.caps.StreamingHeaders {
		build = s.reasm.CreateSegment
	}
	dispatch := func(fn func()) {
		o.post(func() {
			if !s.ended {
				fn()
			}
		})
	}
	s.sched = playback.NewScheduler(playback.SchedulerConfig{
		MinSegmentBytes: o.cfg.MinSegmentBytes,
		MaxQueueBytes:   o.cfg.MaxQueueBytes,
		MIME:            s.caps.MIME,
		BytesPerSecond:  s.caps.BytesPerSecond,
	}, o.player, o.blobs, build, dispatch, o.logger)

	s.sched.OnSegment(func(*playback.Blob) {
		s.current = s.turnIndex
		if !s.paused {
			s.setState(StatePlaying)
		}
		o.metrics.RecordSegment(sourceStream)
		if !s.turnPlayed {
			s.turnPlayed = true
			s.publishSection(s.turnIndex, sourceStream)
		}
	})
	s.sched.OnComplete(s.onSectionPlayed)
	s.sched.OnDrop(func(int) { o.metrics.RecordDroppedChunk() })
}

func (s *Session) openStream() {
	s.opening = true
	ctx, streamer, o := s.ctx, s.streamer, s.o
	go func() {
		st, err := streamer.Open(ctx)
		if !o.post(func() { s.onStreamOpened(st, err) }) && st != nil {
			_ = st.Close()
		}
	}()
}

func (s *Session) onStreamOpened(st synthesizer.Stream, err error) {
	s.opening = false
	if s.ended {
		if st != nil {
			_ = st.Close()
		}
		return
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.stream = st
	s.nextTurn()
}

// nextTurn sends the next section over the stream. One turn runs at a
// time; the following one starts after this section has played.
func (s *Session) nextTurn() {
	if s.ended || s.replaying {
		return
	}
	sec := s.pending
	s.pending = nil
	if sec == nil {
		sec = s.pullSection()
	}
	if sec == nil {
		s.finish()
		return
	}
	if s.stream == nil {
		s.pending = sec
		if !s.opening {
			s.openStream()
		}
		return
	}

	s.reasm.Reset()
	s.sched.Reset()
	if s.paused {
		_ = s.sched.Pause()
	}
	s.turnGen++
	gen := s.turnGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel
	s.turnIndex = sec.Index
	s.turnActive = true
	s.turnPlayed = false
	s.turnAudio = nil
	s.turnStarted = time.Now()
	if !s.paused {
		s.setState(StateSpeaking)
	}

	stream, o, text := s.stream, s.o, sec.Text
	go func() {
		err := stream.Speak(ctx, text, synthesizer.HandlerFunc(func(data []byte) {
			chunk := append([]byte(nil), data...)
			o.post(func() { s.onStreamChunk(gen, chunk) })
		}))
		o.post(func() { s.onTurnEnded(gen, err) })
	}()
}

// pullSection returns the next section that has text, caching blank ones
func (s *Session) pullSection() *sectionRef {
	for s.sec.HasMore() {
		sec, _ := s.sec.Next()
		s.fetched++
		s.next = sec.Index + 1
		if strings.TrimSpace(sec.Text) == "" {
			s.cache.Put(sec.Index, nil)
			continue
		}
		return &sectionRef{Index: sec.Index, Text: sec.Text}
	}
	return nil
}

type sectionRef struct {
	Index int
	Text  string
}

func (s *Session) onStreamChunk(gen int, data []byte) {
	if s.ended || gen != s.turnGen {
		return
	}
	s.turnAudio = append(s.turnAudio, data...)
	if !s.caps.StreamingHeaders {
		s.sched.Enqueue(data)
		return
	}
	for _, packet := range s.reasm.ProcessChunk(data) {
		s.sched.Enqueue(packet)
	}
}

func (s *Session) onTurnEnded(gen int, err error) {
	if s.ended || gen != s.turnGen {
		return
	}
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	engine := s.o.backend.Name()
	elapsed := time.Since(s.turnStarted)
	if err != nil {
		s.o.metrics.RecordSynthesis(engine, string(synthesizer.KindOf(err)), elapsed, 0)
		if s.stream != nil {
			_ = s.stream.Close()
			s.stream = nil
		}
		s.fail(err)
		return
	}
	s.o.metrics.RecordSynthesis(engine, "ok", elapsed, len(s.turnAudio))
	s.cache.Put(s.turnIndex, s.turnAudio)
	s.o.logger.Debug("turn complete",
		zap.String("session", s.id),
		zap.Int("section", s.turnIndex),
		zap.Int("bytes", len(s.turnAudio)),
		zap.Duration("elapsed", elapsed))
	s.turnAudio = nil
	s.sched.MarkComplete()
}

func (s *Session) onSectionPlayed() {
	s.turnActive = false
	s.nextTurn()
}

// abortTurn drops the current turn and its queued audio. A turn still
// receiving audio takes the stream down with it.
func (s *Session) abortTurn() {
	if s.sched == nil {
		return
	}
	s.turnGen++
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
		if s.stream != nil {
			_ = s.stream.Close()
			s.stream = nil
		}
	}
	s.sched.Reset()
	s.reasm.Reset()
	s.turnActive = false
	s.turnAudio = nil
}
