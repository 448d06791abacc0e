package playback

import (
	"errors"
	"time"
)

var (
	ErrNotPlaying  = errors.New("playback: nothing is playing")
	ErrUnsupported = errors.New("playback: operation not supported")
)

// Player renders one blob at a time.
//
// Play starts blob and returns a channel that is closed when its playback
// ends for any reason: natural end, Stop, or a later Play replacing it.
// Callers that need to tell those apart keep their own generation token.
type Player interface {
	Play(blob *Blob) (<-chan struct{}, error)
	Pause() error
	Resume() error
	Stop() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
}
