package playback

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	placeholderFile   = "{file}"
	placeholderOffset = "{offset}"
)

// CommandPlayer plays each blob by running an external player on the
// blob's file, e.g. "ffplay -nodisp -autoexit -ss {offset} {file}".
// Pause and resume suspend the process; seeking restarts it at an offset,
// which needs {offset} in the template.
type CommandPlayer struct {
	args     []string
	canSeek  bool
	mu       sync.Mutex
	blob     *Blob
	cmd      *exec.Cmd
	done     chan struct{}
	runGen   int
	progress progress
	logger   *zap.Logger
}

func NewCommandPlayer(command string, logger *zap.Logger) (*CommandPlayer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("playback: empty player command")
	}
	if !strings.Contains(command, placeholderFile) {
		return nil, fmt.Errorf("playback: player command must contain %s", placeholderFile)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPlayer{
		args:     args,
		canSeek:  strings.Contains(command, placeholderOffset),
		progress: progress{now: time.Now},
		logger:   logger.Named("player"),
	}, nil
}

func (p *CommandPlayer) Play(blob *Blob) (<-chan struct{}, error) {
	if blob.Path == "" {
		return nil, errors.New("playback: command player needs file-backed blobs")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()

	p.blob = blob
	p.done = make(chan struct{})
	if err := p.startLocked(0); err != nil {
		p.endLocked()
		return nil, err
	}
	return p.done, nil
}

func (p *CommandPlayer) startLocked(offset time.Duration) error {
	args := make([]string, len(p.args))
	for i, a := range p.args {
		a = strings.ReplaceAll(a, placeholderFile, p.blob.Path)
		a = strings.ReplaceAll(a, placeholderOffset, fmt.Sprintf("%.3f", offset.Seconds()))
		args[i] = a
	}
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	p.runGen++
	p.cmd = cmd
	p.progress.start(offset)
	go p.wait(cmd, p.runGen)
	return nil
}

func (p *CommandPlayer) wait(cmd *exec.Cmd, gen int) {
	err := cmd.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.runGen {
		return
	}
	if err != nil {
		p.logger.Debug("player exited", zap.Error(err))
	}
	p.cmd = nil
	p.endLocked()
}

func (p *CommandPlayer) killLocked() {
	p.runGen++
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}

func (p *CommandPlayer) endLocked() {
	p.killLocked()
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.blob = nil
}

func (p *CommandPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return ErrNotPlaying
	}
	if p.progress.paused {
		return nil
	}
	if err := pauseProcess(p.cmd.Process); err != nil {
		return err
	}
	p.progress.pause(p.durationLocked())
	return nil
}

func (p *CommandPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return ErrNotPlaying
	}
	if !p.progress.paused {
		return nil
	}
	if err := resumeProcess(p.cmd.Process); err != nil {
		return err
	}
	p.progress.start(p.progress.offset)
	return nil
}

func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
	return nil
}

func (p *CommandPlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return ErrNotPlaying
	}
	if !p.canSeek {
		return ErrUnsupported
	}
	if pos < 0 {
		pos = 0
	}
	if d := p.durationLocked(); d > 0 && pos > d {
		pos = d
	}
	paused := p.progress.paused
	p.killLocked()
	if err := p.startLocked(pos); err != nil {
		p.endLocked()
		return err
	}
	if paused {
		if err := pauseProcess(p.cmd.Process); err == nil {
			p.progress.pause(p.durationLocked())
		}
	}
	return nil
}

func (p *CommandPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return 0
	}
	return p.progress.position(p.durationLocked())
}

func (p *CommandPlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

func (p *CommandPlayer) durationLocked() time.Duration {
	if p.blob == nil {
		return 0
	}
	return p.blob.Duration
}
