// Package playbacktest provides a scriptable Player for tests.
package playbacktest

import (
	"sync"
	"time"

	"github.com/code-100-precent/LingReader/pkg/playback"
)

// Player records every call and only finishes a blob when told to
type Player struct {
	mu       sync.Mutex
	plays    []*playback.Blob
	done     chan struct{}
	paused   bool
	position time.Duration
	seeks    []time.Duration
	stops    int
	started  chan *playback.Blob
}

func New() *Player {
	return &Player{started: make(chan *playback.Blob, 64)}
}

// Started delivers each blob as Play receives it
func (p *Player) Started() <-chan *playback.Blob {
	return p.started
}

func (p *Player) Play(blob *playback.Blob) (<-chan struct{}, error) {
	p.mu.Lock()
	p.closeLocked()
	p.plays = append(p.plays, blob)
	p.done = make(chan struct{})
	p.paused = false
	p.position = 0
	done := p.done
	p.mu.Unlock()
	p.started <- blob
	return done, nil
}

func (p *Player) closeLocked() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

// Finish ends the current blob as if it played to the end
func (p *Player) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return playback.ErrNotPlaying
	}
	p.paused = true
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return playback.ErrNotPlaying
	}
	p.paused = false
	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.closeLocked()
	return nil
}

func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return playback.ErrNotPlaying
	}
	if pos < 0 {
		pos = 0
	}
	p.seeks = append(p.seeks, pos)
	p.position = pos
	return nil
}

// SetPosition moves the reported playing position
func (p *Player) SetPosition(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.plays) == 0 || p.done == nil {
		return 0
	}
	return p.plays[len(p.plays)-1].Duration
}

// Plays returns every blob played so far
func (p *Player) Plays() []*playback.Blob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*playback.Blob(nil), p.plays...)
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Player) Seeks() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.seeks...)
}

func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}
