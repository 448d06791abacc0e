package speech

import (
	"errors"
	"strings"

	"github.com/code-100-precent/LingReader/pkg/i18n"
	"github.com/code-100-precent/LingReader/pkg/notification"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"go.uber.org/zap"
)

// active reports whether a unit is on the player
func (s *Session) active() bool {
	return s.playing || (s.sched != nil && s.sched.Playing())
}

func (s *Session) pause() error {
	if s.paused {
		return nil
	}
	s.paused = true
	var err error
	if s.playing {
		err = s.o.player.Pause()
	}
	if s.sched != nil {
		if serr := s.sched.Pause(); err == nil {
			err = serr
		}
	}
	s.setState(StatePaused)
	return err
}

func (s *Session) resume() error {
	if !s.paused {
		return nil
	}
	s.paused = false
	switch {
	case s.playing:
		if s.replaying {
			s.setState(StatePlayingFromCache)
		} else {
			s.setState(StatePlaying)
		}
		return s.o.player.Resume()
	case s.sched != nil && !s.replaying:
		if s.sched.Playing() {
			s.setState(StatePlaying)
		} else {
			s.setState(StateSpeaking)
		}
		// Resume may start the next segment or turn
		return s.sched.Resume()
	default:
		s.setState(StateSpeaking)
		s.advance()
		return nil
	}
}

// skipBackward rewinds within the playing unit, or restarts the previous
// cached section when the unit has not played long enough
func (s *Session) skipBackward() error {
	interval := s.o.cfg.SkipInterval
	active := s.active()
	if active {
		if pos := s.o.player.Position(); pos >= interval {
			return s.o.player.Seek(pos - interval)
		}
	}
	for idx := s.current - 1; idx >= 0 && idx < s.cache.Len(); idx-- {
		if audio, _ := s.cache.Get(idx); len(audio) > 0 {
			s.o.logger.Debug("skip back to cached section", zap.String("session", s.id), zap.Int("section", idx))
			s.startCacheReplay(idx)
			return nil
		}
	}
	if active {
		return s.o.player.Seek(0)
	}
	return nil
}

// skipForward jumps ahead within the playing unit; near its end it moves
// on to the next unit
func (s *Session) skipForward() error {
	if !s.active() {
		return nil
	}
	interval := s.o.cfg.SkipInterval
	pos, dur := s.o.player.Position(), s.o.player.Duration()
	if pos+interval < dur {
		return s.o.player.Seek(pos + interval)
	}
	if s.paused {
		if err := s.resume(); err != nil {
			return err
		}
	}
	// the unit ends as if it had played out
	return s.o.player.Stop()
}

func (s *Session) replay() error {
	if s.cache.Len() == 0 {
		return ErrNothingCached
	}
	s.startCacheReplay(0)
	return nil
}

var kindKeys = map[synthesizer.ErrorKind]string{
	synthesizer.KindConfigIncomplete: i18n.KeyConfigIncomplete,
	synthesizer.KindAuthFailed:       i18n.KeyAuthFailed,
	synthesizer.KindConnectionFailed: i18n.KeyConnectionFailed,
	synthesizer.KindConnectionClosed: i18n.KeyConnectionClosed,
	synthesizer.KindRateLimited:      i18n.KeyRateLimited,
	synthesizer.KindAPIError:         i18n.KeyAPIError,
}

// fail ends the session on err. Cancellation ends it silently; anything
// else produces exactly one notification.
func (s *Session) fail(err error) {
	if s.ended {
		return
	}
	kind := synthesizer.KindOf(err)
	if kind == synthesizer.KindCanceled {
		s.end(StateStopped, nil)
		return
	}
	s.o.logger.Error("speech failed",
		zap.String("session", s.id),
		zap.String("kind", string(kind)),
		zap.Error(err))
	s.o.metrics.RecordFailure(string(kind))
	s.o.notifier.Notify(s.notification(kind, err))
	s.end(StateIdle, err)
}

func (s *Session) notification(kind synthesizer.ErrorKind, err error) notification.Notification {
	tr := s.o.tr
	key, ok := kindKeys[kind]
	if !ok {
		key = i18n.KeyAPIError
	}
	lines := []string{tr.T(i18n.KeyNotificationTitle), tr.T(key)}
	var se *synthesizer.Error
	if errors.As(err, &se) {
		switch {
		case len(se.Missing) > 0:
			lines = append(lines, tr.T(i18n.KeyMissingSettings, strings.Join(se.Missing, ", ")))
		case se.Message != "":
			lines = append(lines, se.Message)
		}
	}
	return notification.Notification{
		Kind:     string(kind),
		Severity: notification.SeverityError,
		Lines:    lines,
		Session:  s.id,
	}
}
