package synthesizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/sirupsen/logrus"
)

const EngineLocal = "local"

// Settings for the on-device engine
const (
	LocalKeyCommand  = "local.command"
	LocalKeyVoice    = "local.voice"
	LocalKeyLanguage = "local.language"
	LocalKeyRate     = "local.rate" // words per minute
)

// DefaultLocalCommand reads text on stdin and writes WAV to stdout.
// {voice}, {language} and {rate} are substituted per call.
const DefaultLocalCommand = "espeak-ng --stdout -v {voice} -s {rate}"

// LocalBackend runs an offline engine as a subprocess
type LocalBackend struct {
	store   config.Store
	timeout time.Duration
}

func NewLocalBackend(store config.Store, opts Options) *LocalBackend {
	return &LocalBackend{store: store, timeout: opts.withDefaults().RequestTimeout}
}

func (b *LocalBackend) Name() string { return EngineLocal }

func (b *LocalBackend) Capabilities() Capabilities {
	return Capabilities{
		Variant:        VariantSingleShot,
		Profile:        ProfileLocal,
		MIME:           "audio/wav",
		BytesPerSecond: 44100, // 22.05 kHz 16-bit mono
	}
}

func (b *LocalBackend) voice() string {
	if v := config.GetString(b.store, LocalKeyVoice, ""); v != "" {
		return v
	}
	return config.GetString(b.store, LocalKeyLanguage, "")
}

func (b *LocalBackend) Validate() error {
	if b.voice() == "" {
		return configError(EngineLocal, []string{LocalKeyVoice})
	}
	return nil
}

func (b *LocalBackend) CacheKey(text string) string {
	return fmt.Sprintf("local.tts-%s-%d-%s.wav", b.voice(), config.GetInt(b.store, LocalKeyRate, 175), digest(text))
}

func (b *LocalBackend) Close() error { return nil }

func (b *LocalBackend) args() []string {
	command := config.GetString(b.store, LocalKeyCommand, DefaultLocalCommand)
	replacer := strings.NewReplacer(
		"{voice}", b.voice(),
		"{language}", config.GetString(b.store, LocalKeyLanguage, ""),
		"{rate}", fmt.Sprint(config.GetInt(b.store, LocalKeyRate, 175)),
	)
	fields := strings.Fields(command)
	for i, f := range fields {
		fields[i] = replacer.Replace(f)
	}
	return fields
}

func (b *LocalBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	args := b.args()
	if len(args) == 0 {
		return nil, configError(EngineLocal, []string{LocalKeyCommand})
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, &Error{Kind: KindConfigIncomplete, Backend: EngineLocal, Missing: []string{LocalKeyCommand}, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ctx, EngineLocal, KindConnectionFailed, ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindConnectionFailed, Backend: EngineLocal, Message: "engine timed out", Err: err}
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"provider": EngineLocal,
			"command":  args[0],
		}).Error("local tts: engine failed")
		return nil, &Error{Kind: KindAPIError, Backend: EngineLocal, Message: strings.TrimSpace(stderr.String()), Err: err}
	}
	if stdout.Len() == 0 {
		return nil, &Error{Kind: KindAPIError, Backend: EngineLocal, Message: "engine produced no audio"}
	}
	logrus.WithFields(logrus.Fields{
		"provider":   EngineLocal,
		"command":    args[0],
		"audio_size": stdout.Len(),
		"elapsed":    time.Since(started),
	}).Info("local tts: synthesis completed")
	return stdout.Bytes(), nil
}
