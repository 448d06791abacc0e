package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator looks up a user-facing string by key. Unknown keys are
// returned unchanged.
type Translator interface {
	T(key string, args ...interface{}) string
}

// Message keys used by the speech pipeline
const (
	KeyNotificationTitle = "speech.notification.title"
	KeyConfigIncomplete  = "speech.error.config-incomplete"
	KeyAuthFailed        = "speech.error.auth-failed"
	KeyConnectionFailed  = "speech.error.connection-failed"
	KeyConnectionClosed  = "speech.error.connection-closed"
	KeyRateLimited       = "speech.error.rate-limited"
	KeyAPIError          = "speech.error.api-error"
	KeyMissingSettings   = "speech.error.missing-settings"
)

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyNotificationTitle: "Read aloud",
		KeyConfigIncomplete:  "Text-to-speech is not fully configured.",
		KeyAuthFailed:        "The speech service rejected the credentials.",
		KeyConnectionFailed:  "Could not connect to the speech service.",
		KeyConnectionClosed:  "Connection closed unexpectedly.",
		KeyRateLimited:       "The speech service is rate limiting requests. Try again later.",
		KeyAPIError:          "The speech service returned an error.",
		KeyMissingSettings:   "Missing settings: %s",
	},
	language.SimplifiedChinese: {
		KeyNotificationTitle: "朗读",
		KeyConfigIncomplete:  "语音合成配置不完整。",
		KeyAuthFailed:        "语音服务拒绝了当前凭据。",
		KeyConnectionFailed:  "无法连接到语音服务。",
		KeyConnectionClosed:  "连接意外关闭。",
		KeyRateLimited:       "语音服务请求过于频繁，请稍后再试。",
		KeyAPIError:          "语音服务返回了错误。",
		KeyMissingSettings:   "缺少配置项：%s",
	},
}

// Catalog is a Translator backed by x/text message catalogs
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New picks the closest supported language for lang (BCP 47), falling
// back to English.
func New(lang string) *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			_ = b.SetString(tag, key, msg)
		}
	}

	tag := language.English
	if requested, err := language.Parse(lang); err == nil {
		supported := b.Languages()
		_, idx, conf := language.NewMatcher(supported).Match(requested)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}
}

// Language reports the matched language
func (c *Catalog) Language() language.Tag {
	return c.tag
}

func (c *Catalog) T(key string, args ...interface{}) string {
	return c.printer.Sprintf(key, args...)
}
