//go:build !windows

package playback

import (
	"os"
	"syscall"
)

func pauseProcess(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}
