package synthesizer

import (
	"context"
	"time"

	"github.com/code-100-precent/LingReader/pkg/cache"
	"github.com/code-100-precent/LingReader/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// CachedBackend keeps synthesized blobs across sessions, keyed by the
// wrapped backend's CacheKey
type CachedBackend struct {
	BlobSynthesizer
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewCachedBackend(b BlobSynthesizer, c cache.Cache, ttl time.Duration, m *metrics.Metrics) *CachedBackend {
	return &CachedBackend{BlobSynthesizer: b, cache: c, ttl: ttl, metrics: m}
}

func (b *CachedBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := b.CacheKey(text)
	if key != "" {
		if audio, ok := b.cache.Get(ctx, key); ok && len(audio) > 0 {
			b.metrics.RecordCacheLookup("shared", true)
			return audio, nil
		}
		b.metrics.RecordCacheLookup("shared", false)
	}
	audio, err := b.BlobSynthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := b.cache.Set(ctx, key, audio, b.ttl); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("tts cache: store failed")
		}
	}
	return audio, nil
}
