package synthesizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingReader/pkg/sectioner"
)

var jsonAPI = sonic.ConfigStd

// Variant is the transport contract of a backend
type Variant int

const (
	// VariantStreaming keeps one connection per session and streams
	// container pages per section
	VariantStreaming Variant = iota
	// VariantPrefetch returns a whole blob per request and may run ahead
	VariantPrefetch
	// VariantSingleShot returns a whole blob per request, one at a time
	VariantSingleShot
)

func (v Variant) String() string {
	switch v {
	case VariantStreaming:
		return "streaming"
	case VariantPrefetch:
		return "prefetch"
	case VariantSingleShot:
		return "single-shot"
	default:
		return "unknown"
	}
}

// Capabilities is everything the orchestrator needs to drive a backend
type Capabilities struct {
	Variant Variant
	Profile sectioner.Profile
	// PrefetchLimit is the number of sections fetched ahead of playback
	PrefetchLimit int
	// StreamingHeaders means audio arrives as Ogg pages whose header pages
	// must be prepended to every segment
	StreamingHeaders bool
	MIME             string
	// BytesPerSecond estimates playing time from encoded size
	BytesPerSecond int
}

// SynthesisHandler receives streamed audio as it arrives
type SynthesisHandler interface {
	OnMessage(data []byte)
}

// HandlerFunc adapts a function to SynthesisHandler
type HandlerFunc func(data []byte)

func (f HandlerFunc) OnMessage(data []byte) { f(data) }

// Backend is a configured speech engine
type Backend interface {
	Name() string
	Capabilities() Capabilities
	// Validate reports config-incomplete when required settings are unset
	Validate() error
	// CacheKey identifies the audio text would produce with the current
	// voice, model and format
	CacheKey(text string) string
	Close() error
}

// BlobSynthesizer turns one section into a complete audio blob
type BlobSynthesizer interface {
	Backend
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// StreamSynthesizer opens a session-long connection
type StreamSynthesizer interface {
	Backend
	Open(ctx context.Context) (Stream, error)
}

// Stream synthesizes sections over one connection. Speak blocks for one
// turn and hands audio frames to handler as they arrive; it returns nil once
// the turn ends. Speak must not be called concurrently.
type Stream interface {
	Speak(ctx context.Context, text string, handler SynthesisHandler) error
	Close() error
}

// Options are the engine-independent knobs
type Options struct {
	// AckTimeout bounds the wait for a streaming turn to start
	AckTimeout time.Duration
	// RequestTimeout bounds one REST request or one local engine run
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	return o
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
