package speech_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingReader/pkg/i18n"
	"github.com/code-100-precent/LingReader/pkg/notification"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/playback/playbacktest"
	"github.com/code-100-precent/LingReader/pkg/sectioner"
	"github.com/code-100-precent/LingReader/pkg/speech"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testProfile = sectioner.Profile{MaxSize: 40, FirstSize: 20, StandardSize: 30}

const longText = "The first sentence is here. The second one follows it. " +
	"A third line keeps going. Then a fourth arrives. And the fifth closes the text."

// sectionsOf cuts text the way the orchestrator will
func sectionsOf(t *testing.T, text string) []string {
	t.Helper()
	s := sectioner.New(testProfile, nil)
	s.Initialize(text)
	var out []string
	for s.HasMore() {
		sec, _ := s.Next()
		if strings.TrimSpace(sec.Text) != "" {
			out = append(out, sec.Text)
		}
	}
	return out
}

func audioFor(text string) []byte {
	return []byte("audio:" + text)
}

type fakeBlob struct {
	caps synthesizer.Capabilities

	mu          sync.Mutex
	voice       string
	calls       []string
	err         error
	validateErr error
	delay       func(text string) time.Duration
}

func newFakeBlob(variant synthesizer.Variant, prefetch int) *fakeBlob {
	return &fakeBlob{
		voice: "alloy",
		caps: synthesizer.Capabilities{
			Variant:        variant,
			Profile:        testProfile,
			PrefetchLimit:  prefetch,
			MIME:           "audio/mpeg",
			BytesPerSecond: 16000,
		},
	}
}

func (f *fakeBlob) Name() string                            { return "fake" }
func (f *fakeBlob) Capabilities() synthesizer.Capabilities { return f.caps }
func (f *fakeBlob) Close() error                            { return nil }

func (f *fakeBlob) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateErr
}

func (f *fakeBlob) CacheKey(text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice + "|" + text
}

func (f *fakeBlob) setVoice(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = v
}

func (f *fakeBlob) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err, delay := f.err, f.delay
	f.mu.Unlock()
	if delay != nil {
		select {
		case <-time.After(delay(text)):
		case <-ctx.Done():
			return nil, &synthesizer.Error{Kind: synthesizer.KindCanceled, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return audioFor(text), nil
}

func (f *fakeBlob) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeStreamer struct {
	caps synthesizer.Capabilities

	mu      sync.Mutex
	opens   int
	speaks  []string
	openErr error
	failOn  func(text string) error
	// chunks produces the audio chunks of one turn
	chunks func(text string) [][]byte
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		caps: synthesizer.Capabilities{
			Variant:        synthesizer.VariantStreaming,
			Profile:        testProfile,
			MIME:           "audio/mpeg",
			BytesPerSecond: 16000,
		},
		chunks: func(text string) [][]byte {
			audio := audioFor(text)
			half := len(audio) / 2
			return [][]byte{audio[:half], audio[half:]}
		},
	}
}

func (f *fakeStreamer) Name() string                            { return "fake-stream" }
func (f *fakeStreamer) Capabilities() synthesizer.Capabilities { return f.caps }
func (f *fakeStreamer) Validate() error                         { return nil }
func (f *fakeStreamer) CacheKey(text string) string             { return "stream|" + text }
func (f *fakeStreamer) Close() error                            { return nil }

func (f *fakeStreamer) Open(ctx context.Context) (synthesizer.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{f: f}, nil
}

func (f *fakeStreamer) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeStreamer) Speaks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.speaks...)
}

type fakeStream struct {
	f *fakeStreamer
}

func (s *fakeStream) Speak(ctx context.Context, text string, h synthesizer.SynthesisHandler) error {
	s.f.mu.Lock()
	s.f.speaks = append(s.f.speaks, text)
	failOn, chunks := s.f.failOn, s.f.chunks
	s.f.mu.Unlock()
	if failOn != nil {
		if err := failOn(text); err != nil {
			return err
		}
	}
	for _, c := range chunks(text) {
		h.OnMessage(c)
	}
	return nil
}

func (s *fakeStream) Close() error { return nil }

type harness struct {
	o        *speech.Orchestrator
	player   *playbacktest.Player
	blobs    *playback.BlobStore
	recorder *notification.Recorder
}

func newHarness(t *testing.T, backend synthesizer.Backend, logger *zap.Logger) *harness {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &harness{
		player:   playbacktest.New(),
		blobs:    playback.NewBlobStore("", logger),
		recorder: &notification.Recorder{},
	}
	o, err := speech.New(speech.Options{
		Backend:    backend,
		Player:     h.player,
		Blobs:      h.blobs,
		Notifier:   h.recorder,
		Translator: i18n.New("en"),
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	h.o = o
	return h
}

// next waits for the player to start a blob
func (h *harness) next(t *testing.T) *playback.Blob {
	t.Helper()
	select {
	case b := <-h.player.Started():
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback")
		return nil
	}
}

// playAll finishes every expected unit in order and returns what played
func (h *harness) playAll(t *testing.T, n int) []string {
	t.Helper()
	var played []string
	for i := 0; i < n; i++ {
		played = append(played, string(h.next(t).Data))
		h.player.Finish()
	}
	return played
}

func waitDone(t *testing.T, s *speech.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not end, state %s", s.ID(), s.State())
	}
}

func expectedAudio(sections []string) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = string(audioFor(s))
	}
	return out
}
