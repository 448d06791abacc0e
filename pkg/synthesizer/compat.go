package synthesizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/sirupsen/logrus"
)

const EngineCompat = "compat"

// Settings for an OpenAI-compatible speech server
const (
	CompatKeyEndpoint = "compat.endpoint"
	CompatKeyAPIKey   = "compat.api_key"
	CompatKeyModel    = "compat.model"
	CompatKeyVoice    = "compat.voice"
	CompatKeyFormat   = "compat.format"
)

// CompatBackend sends one request at a time, without prefetch
type CompatBackend struct {
	store  config.Store
	client *http.Client
}

func NewCompatBackend(store config.Store, opts Options) *CompatBackend {
	opts = opts.withDefaults()
	return &CompatBackend{store: store, client: &http.Client{Timeout: opts.RequestTimeout}}
}

func (b *CompatBackend) Name() string { return EngineCompat }

func (b *CompatBackend) Capabilities() Capabilities {
	format := config.GetString(b.store, CompatKeyFormat, "mp3")
	return Capabilities{
		Variant:        VariantSingleShot,
		Profile:        ProfileCompat,
		MIME:           formatMIME(format),
		BytesPerSecond: formatBytesPerSecond(format),
	}
}

func (b *CompatBackend) Validate() error {
	if missing := config.Missing(b.store, CompatKeyEndpoint, CompatKeyModel, CompatKeyVoice); len(missing) > 0 {
		return configError(EngineCompat, missing)
	}
	return nil
}

func (b *CompatBackend) CacheKey(text string) string {
	return fmt.Sprintf("compat.tts-%s-%s-%s.%s",
		config.GetString(b.store, CompatKeyModel, ""),
		config.GetString(b.store, CompatKeyVoice, ""),
		digest(text),
		config.GetString(b.store, CompatKeyFormat, "mp3"))
}

func (b *CompatBackend) Close() error { return nil }

func (b *CompatBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(config.GetString(b.store, CompatKeyEndpoint, ""), "/")
	body := SpeechRequest{
		Model:          config.GetString(b.store, CompatKeyModel, ""),
		Input:          text,
		Voice:          config.GetString(b.store, CompatKeyVoice, ""),
		ResponseFormat: config.GetString(b.store, CompatKeyFormat, "mp3"),
	}

	var audio bytes.Buffer
	rb := requests.
		URL(endpoint + speechPath).
		Client(b.client).
		BodyJSON(&body).
		AddValidator(checkSpeechStatus).
		ToBytesBuffer(&audio)
	if key := config.GetString(b.store, CompatKeyAPIKey, ""); key != "" {
		rb = rb.Bearer(key)
	}
	if err := rb.Fetch(ctx); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			logrus.WithFields(logrus.Fields{
				"provider":    EngineCompat,
				"status_code": apiErr.Status,
			}).Error("compat tts: api error")
			return nil, apiErr
		}
		return nil, transportError(ctx, EngineCompat, KindConnectionFailed, err)
	}
	if audio.Len() == 0 {
		return nil, &Error{Kind: KindAPIError, Backend: EngineCompat, Message: "empty audio"}
	}
	logrus.WithFields(logrus.Fields{
		"provider":   EngineCompat,
		"model":      body.Model,
		"audio_size": audio.Len(),
	}).Info("compat tts: synthesis completed")
	return audio.Bytes(), nil
}

func checkSpeechStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return statusError(EngineCompat, res.StatusCode, body)
}
