package playback

import (
	"sync"
	"time"
)

// progress tracks the playing position of a unit from wall-clock time
type progress struct {
	startedAt time.Time
	offset    time.Duration
	paused    bool
	now       func() time.Time
}

func (p *progress) position(limit time.Duration) time.Duration {
	pos := p.offset
	if !p.paused {
		pos += p.now().Sub(p.startedAt)
	}
	if pos > limit {
		pos = limit
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (p *progress) start(offset time.Duration) {
	p.offset = offset
	p.startedAt = p.now()
	p.paused = false
}

func (p *progress) pause(limit time.Duration) {
	p.offset = p.position(limit)
	p.paused = true
}

// ClockPlayer simulates playback from each blob's estimated duration. It
// drives the pipeline headless, e.g. on servers without audio output.
type ClockPlayer struct {
	mu       sync.Mutex
	blob     *Blob
	done     chan struct{}
	timer    *time.Timer
	timerGen int
	progress progress
}

func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{progress: progress{now: time.Now}}
}

func (p *ClockPlayer) Play(blob *Blob) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()

	p.blob = blob
	p.done = make(chan struct{})
	p.progress.start(0)
	p.scheduleLocked()
	return p.done, nil
}

func (p *ClockPlayer) scheduleLocked() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timerGen++
	gen := p.timerGen
	remaining := p.blob.Duration - p.progress.position(p.blob.Duration)
	p.timer = time.AfterFunc(remaining, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if gen == p.timerGen {
			p.endLocked()
		}
	})
}

func (p *ClockPlayer) endLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerGen++
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.blob = nil
}

func (p *ClockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return ErrNotPlaying
	}
	if p.progress.paused {
		return nil
	}
	p.progress.pause(p.blob.Duration)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timerGen++
	return nil
}

func (p *ClockPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return ErrNotPlaying
	}
	if !p.progress.paused {
		return nil
	}
	p.progress.start(p.progress.offset)
	p.scheduleLocked()
	return nil
}

func (p *ClockPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
	return nil
}

func (p *ClockPlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return ErrNotPlaying
	}
	if pos < 0 {
		pos = 0
	}
	if pos > p.blob.Duration {
		pos = p.blob.Duration
	}
	if p.progress.paused {
		p.progress.offset = pos
		return nil
	}
	p.progress.start(pos)
	p.scheduleLocked()
	return nil
}

func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return 0
	}
	return p.progress.position(p.blob.Duration)
}

func (p *ClockPlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return 0
	}
	return p.blob.Duration
}
