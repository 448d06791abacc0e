package synthesizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const EngineOpenAI = "openai"

// OpenAI setting keys
const (
	OpenAIKeyEndpoint = "openai.endpoint"
	OpenAIKeyAPIKey   = "openai.api_key"
	OpenAIKeyModel    = "openai.model"
	OpenAIKeyVoice    = "openai.voice"
	OpenAIKeyFormat   = "openai.format"
	OpenAIKeySpeed    = "openai.speed" // percent, 100 is normal
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultPrefetchLimit  = 2
	speechPath            = "/audio/speech"
)

// SpeechRequest is the body of POST /audio/speech
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// OpenAIOptions REST 合成配置
type OpenAIOptions struct {
	Endpoint string
	APIKey   string
	Model    string
	Voice    string
	Format   string
	Speed    int
}

// OpenAIBackend fetches one blob per section and prefetches ahead of playback
type OpenAIBackend struct {
	store         config.Store
	client        *resty.Client
	prefetchLimit int
}

func NewOpenAIBackend(store config.Store, opts Options) *OpenAIBackend {
	opts = opts.withDefaults()
	client := resty.New().
		SetTimeout(opts.RequestTimeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("User-Agent", "LingReader")
	return &OpenAIBackend{store: store, client: client, prefetchLimit: defaultPrefetchLimit}
}

// SetPrefetchLimit overrides how many sections are fetched ahead
func (b *OpenAIBackend) SetPrefetchLimit(n int) {
	if n >= 0 {
		b.prefetchLimit = n
	}
}

func (b *OpenAIBackend) options() OpenAIOptions {
	return OpenAIOptions{
		Endpoint: strings.TrimRight(config.GetString(b.store, OpenAIKeyEndpoint, defaultOpenAIEndpoint), "/"),
		APIKey:   config.GetString(b.store, OpenAIKeyAPIKey, ""),
		Model:    config.GetString(b.store, OpenAIKeyModel, "tts-1"),
		Voice:    config.GetString(b.store, OpenAIKeyVoice, "alloy"),
		Format:   config.GetString(b.store, OpenAIKeyFormat, "mp3"),
		Speed:    config.GetInt(b.store, OpenAIKeySpeed, 100),
	}
}

func (b *OpenAIBackend) Name() string { return EngineOpenAI }

func (b *OpenAIBackend) Capabilities() Capabilities {
	format := b.options().Format
	return Capabilities{
		Variant:        VariantPrefetch,
		Profile:        ProfileOpenAI,
		PrefetchLimit:  b.prefetchLimit,
		MIME:           formatMIME(format),
		BytesPerSecond: formatBytesPerSecond(format),
	}
}

func (b *OpenAIBackend) Validate() error {
	if missing := config.Missing(b.store, OpenAIKeyAPIKey); len(missing) > 0 {
		return configError(EngineOpenAI, missing)
	}
	return nil
}

func (b *OpenAIBackend) CacheKey(text string) string {
	o := b.options()
	return fmt.Sprintf("openai.tts-%s-%s-%d-%s.%s", o.Model, o.Voice, o.Speed, digest(text), o.Format)
}

func (b *OpenAIBackend) Close() error { return nil }

func (b *OpenAIBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	o := b.options()
	req := SpeechRequest{
		Model:          o.Model,
		Input:          text,
		Voice:          o.Voice,
		ResponseFormat: o.Format,
	}
	if o.Speed != 100 && o.Speed > 0 {
		req.Speed = float64(o.Speed) / 100
	}

	started := time.Now()
	resp, err := b.client.R().
		SetContext(ctx).
		SetAuthToken(o.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(o.Endpoint + speechPath)
	if err != nil {
		logrus.WithError(err).WithField("provider", EngineOpenAI).Warn("openai tts: request failed")
		return nil, transportError(ctx, EngineOpenAI, KindConnectionFailed, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		logrus.WithFields(logrus.Fields{
			"provider":    EngineOpenAI,
			"status_code": resp.StatusCode(),
		}).Error("openai tts: api error")
		return nil, statusError(EngineOpenAI, resp.StatusCode(), resp.Body())
	}
	audio := resp.Body()
	if len(audio) == 0 {
		return nil, &Error{Kind: KindAPIError, Backend: EngineOpenAI, Status: resp.StatusCode(), Message: "empty audio"}
	}
	logrus.WithFields(logrus.Fields{
		"provider":   EngineOpenAI,
		"model":      o.Model,
		"chars":      len([]rune(text)),
		"audio_size": len(audio),
		"elapsed":    time.Since(started),
	}).Info("openai tts: synthesis completed")
	return audio, nil
}

func formatMIME(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}

// formatBytesPerSecond estimates encoded bytes per second of speech
func formatBytesPerSecond(format string) int {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return 48000 // 24 kHz 16-bit mono
	case "flac":
		return 24000
	case "opus":
		return 4000
	default:
		return 16000 // 128 kbit/s
	}
}
