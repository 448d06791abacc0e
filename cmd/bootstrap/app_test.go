package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/code-100-precent/LingReader/pkg/config"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/synthesizer"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBuildWiresCachedBackend(t *testing.T) {
	cfg := testConfig()
	store := config.NewMemoryStore(map[string]string{"openai.api_key": "sk-test"})

	app, err := Build(cfg, store, playback.NewClockPlayer(), nil)
	require.NoError(t, err)
	defer app.Close()

	_, cached := app.Backend.(*synthesizer.CachedBackend)
	assert.True(t, cached, "whole-blob backends get the shared audio cache")
	assert.NotNil(t, app.Cache)
	caps := app.Backend.Capabilities()
	assert.Equal(t, synthesizer.VariantPrefetch, caps.Variant)
	assert.Equal(t, 3, caps.PrefetchLimit)

	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/speech/state", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	data := got["data"].(map[string]any)
	assert.Equal(t, "openai", data["engine"])
	assert.Equal(t, "idle", data["state"])
}

func TestBuildStreamingSkipsCache(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.Engine = "azure"

	app, err := Build(cfg, config.NewMemoryStore(nil), playback.NewClockPlayer(), nil)
	require.NoError(t, err)
	defer app.Close()

	_, ok := app.Backend.(*synthesizer.AzureBackend)
	assert.True(t, ok)
	assert.Nil(t, app.Cache)
}

func TestBuildUnknownEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.Engine = "nope"
	_, err := Build(cfg, config.NewMemoryStore(nil), playback.NewClockPlayer(), nil)
	assert.Error(t, err)
}

func TestNewPlayer(t *testing.T) {
	p, err := NewPlayer(config.PlaybackConfig{Player: "clock"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &playback.ClockPlayer{}, p)

	_, err = NewPlayer(config.PlaybackConfig{Player: "speakers"}, nil)
	assert.Error(t, err)
}
