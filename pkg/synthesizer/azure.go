package synthesizer

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const EngineAzure = "azure"

// Azure setting keys
const (
	AzureKeyRegion   = "azure.region"
	AzureKeyKey      = "azure.key"
	AzureKeyEndpoint = "azure.endpoint"
	AzureKeyVoice    = "azure.voice"
	AzureKeyLanguage = "azure.language"
	AzureKeyVolume   = "azure.volume" // percent relative to default
	AzureKeyRate     = "azure.rate"   // percent relative to default
	AzureKeyFormat   = "azure.format"
)

const defaultAzureFormat = "ogg-24khz-16bit-mono-opus"

// AzureOptions 流式合成配置，每次合成前从 Store 读取
type AzureOptions struct {
	Region   string
	Key      string
	Endpoint string
	Voice    string
	Language string
	Volume   int
	Rate     int
	Format   string
}

// AzureBackend speaks over the cognitive services TTS websocket
type AzureBackend struct {
	store  config.Store
	opts   Options
	dialer *websocket.Dialer
}

func NewAzureBackend(store config.Store, opts Options) *AzureBackend {
	return &AzureBackend{
		store: store,
		opts:  opts.withDefaults(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.withDefaults().RequestTimeout,
		},
	}
}

func (b *AzureBackend) options() AzureOptions {
	return AzureOptions{
		Region:   config.GetString(b.store, AzureKeyRegion, ""),
		Key:      config.GetString(b.store, AzureKeyKey, ""),
		Endpoint: config.GetString(b.store, AzureKeyEndpoint, ""),
		Voice:    config.GetString(b.store, AzureKeyVoice, ""),
		Language: config.GetString(b.store, AzureKeyLanguage, ""),
		Volume:   config.GetInt(b.store, AzureKeyVolume, 0),
		Rate:     config.GetInt(b.store, AzureKeyRate, 0),
		Format:   config.GetString(b.store, AzureKeyFormat, defaultAzureFormat),
	}
}

func (b *AzureBackend) Name() string { return EngineAzure }

func (b *AzureBackend) Capabilities() Capabilities {
	format := b.options().Format
	ogg := strings.HasPrefix(format, "ogg-")
	return Capabilities{
		Variant:          VariantStreaming,
		Profile:          ProfileStreaming,
		StreamingHeaders: ogg,
		MIME:             azureMIME(format),
		BytesPerSecond:   azureBytesPerSecond(format),
	}
}

func (b *AzureBackend) Validate() error {
	missing := config.Missing(b.store, AzureKeyKey, AzureKeyVoice, AzureKeyLanguage)
	o := b.options()
	if o.Region == "" && o.Endpoint == "" {
		missing = append(missing, AzureKeyRegion)
	}
	if len(missing) > 0 {
		return configError(EngineAzure, missing)
	}
	return nil
}

func (b *AzureBackend) CacheKey(text string) string {
	o := b.options()
	return fmt.Sprintf("azure.tts-%s-%s-%d-%d-%s.%s", o.Voice, o.Language, o.Rate, o.Volume, digest(text), o.Format)
}

func (b *AzureBackend) Close() error { return nil }

func (b *AzureBackend) endpoint(o AzureOptions) string {
	if o.Endpoint != "" {
		return o.Endpoint
	}
	return fmt.Sprintf("wss://%s.tts.speech.microsoft.com/cognitiveservices/websocket/v1", o.Region)
}

// Open dials the websocket; every section of the session reuses it
func (b *AzureBackend) Open(ctx context.Context) (Stream, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	o := b.options()
	u, err := url.Parse(b.endpoint(o))
	if err != nil {
		return nil, &Error{Kind: KindConfigIncomplete, Backend: EngineAzure, Missing: []string{AzureKeyEndpoint}, Err: err}
	}
	connectionID := newRequestID()
	q := u.Query()
	q.Set("X-ConnectionId", connectionID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Ocp-Apim-Subscription-Key", o.Key)

	conn, resp, err := b.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, statusError(EngineAzure, resp.StatusCode, body)
		}
		return nil, transportError(ctx, EngineAzure, KindConnectionFailed, err)
	}
	logrus.WithFields(logrus.Fields{
		"provider":      EngineAzure,
		"connection_id": connectionID,
		"voice":         o.Voice,
	}).Info("azure tts: connected")
	return &azureStream{conn: conn, opts: o, ackTimeout: b.opts.AckTimeout}, nil
}

type azureStream struct {
	conn       *websocket.Conn
	opts       AzureOptions
	ackTimeout time.Duration
	closed     atomic.Bool
	closeOnce  sync.Once
}

func (s *azureStream) Speak(ctx context.Context, text string, handler SynthesisHandler) error {
	if s.closed.Load() {
		return &Error{Kind: KindCanceled, Backend: EngineAzure, Message: "stream closed"}
	}
	if err := ctx.Err(); err != nil {
		return transportError(ctx, EngineAzure, KindConnectionFailed, err)
	}
	// a blocked read only returns once the connection closes
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	requestID := newRequestID()
	if err := s.sendTurn(requestID, text); err != nil {
		return s.readError(ctx, err, false)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.ackTimeout)); err != nil {
		return s.readError(ctx, err, false)
	}
	started := false
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.readError(ctx, err, started)
		}
		switch kind {
		case websocket.TextMessage:
			frame, err := ParseText(data)
			if err != nil {
				logrus.WithError(err).Warn("azure tts: bad text frame")
				continue
			}
			if !sameRequest(frame, requestID) {
				continue
			}
			switch frame.Path() {
			case PathTurnStart:
				started = true
				if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
					return s.readError(ctx, err, started)
				}
			case PathTurnEnd:
				return nil
			}
		case websocket.BinaryMessage:
			frame, err := ParseBinary(data)
			if err != nil {
				logrus.WithError(err).Warn("azure tts: bad binary frame")
				continue
			}
			if !sameRequest(frame, requestID) || frame.Path() != PathAudio || len(frame.Body) == 0 {
				continue
			}
			handler.OnMessage(frame.Body)
		}
	}
}

func sameRequest(f Frame, requestID string) bool {
	id := f.RequestID()
	return id == "" || strings.EqualFold(id, requestID)
}

func (s *azureStream) sendTurn(requestID, text string) error {
	now := time.Now()
	speechConfig, err := jsonAPI.Marshal(map[string]interface{}{
		"context": map[string]interface{}{
			"system": map[string]string{"name": "LingReader", "version": "1.0.0", "build": "Go", "lang": "Go"},
			"os":     map[string]string{"platform": runtime.GOOS, "name": runtime.GOARCH},
		},
	})
	if err != nil {
		return err
	}
	synthesisContext, err := jsonAPI.Marshal(map[string]interface{}{
		"synthesis": map[string]interface{}{
			"audio": map[string]interface{}{
				"metadataOptions": map[string]bool{
					"sentenceBoundaryEnabled": false,
					"wordBoundaryEnabled":     false,
				},
				"outputFormat": s.opts.Format,
			},
			"language": map[string]bool{"autoDetection": false},
		},
	})
	if err != nil {
		return err
	}
	ssml, err := buildSSML(s.opts, text)
	if err != nil {
		return err
	}
	frames := []Frame{
		NewTextFrame(PathSpeechConfig, requestID, "application/json", speechConfig, now),
		NewTextFrame(PathSynthesisContext, requestID, "application/json", synthesisContext, now),
		NewTextFrame(PathSSML, requestID, "application/ssml+xml", ssml, now),
	}
	for _, f := range frames {
		if err := s.conn.WriteMessage(websocket.TextMessage, EncodeText(f)); err != nil {
			return err
		}
	}
	return nil
}

func (s *azureStream) readError(ctx context.Context, err error, started bool) error {
	if s.closed.Load() || ctx.Err() != nil {
		return &Error{Kind: KindCanceled, Backend: EngineAzure, Err: err}
	}
	var netErr net.Error
	if !started && errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Kind:    KindConnectionFailed,
			Backend: EngineAzure,
			Message: fmt.Sprintf("turn did not start within %s", s.ackTimeout),
			Err:     err,
		}
	}
	logrus.WithError(err).WithField("started", started).Warn("azure tts: connection lost")
	return &Error{Kind: KindConnectionClosed, Backend: EngineAzure, Err: err}
}

func (s *azureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func buildSSML(o AzureOptions, text string) ([]byte, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>", o.Language)
	fmt.Fprintf(&buf, "<voice name='%s'><prosody rate='%+d%%' volume='%+d%%'>", o.Voice, o.Rate, o.Volume)
	buf.Write(escaped.Bytes())
	buf.WriteString("</prosody></voice></speak>")
	return buf.Bytes(), nil
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func azureMIME(format string) string {
	switch {
	case strings.HasPrefix(format, "ogg-"):
		return "audio/ogg"
	case strings.HasPrefix(format, "webm-"):
		return "audio/webm"
	case strings.HasPrefix(format, "riff-"):
		return "audio/wav"
	case strings.HasSuffix(format, "-mp3"):
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// azureBytesPerSecond reads the bitrate from names like
// "audio-24khz-48kbitrate-mono-mp3"; opus formats default to 32 kbit/s
func azureBytesPerSecond(format string) int {
	for _, part := range strings.Split(format, "-") {
		if kbit, ok := strings.CutSuffix(part, "kbitrate"); ok {
			if n, err := strconv.Atoi(kbit); err == nil && n > 0 {
				return n * 1000 / 8
			}
		}
	}
	return 4000
}
