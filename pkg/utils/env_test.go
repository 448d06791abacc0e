package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		"openai.api_key":   "OPENAI_API_KEY",
		"azure.region":     "AZURE_REGION",
		" local.command ":  "LOCAL_COMMAND",
		"speech.min-bytes": "SPEECH_MIN_BYTES",
	}
	for in, want := range cases {
		assert.Equal(t, want, EnvName(in), in)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("LR_INT", " 42 ")
	t.Setenv("LR_BOOL", "true")
	t.Setenv("LR_FLOAT", "1.5")
	t.Setenv("LR_BAD", "abc")

	assert.Equal(t, int64(42), GetIntEnv("LR_INT"))
	assert.True(t, GetBoolEnv("LR_BOOL"))
	assert.Equal(t, 1.5, GetFloatEnv("LR_FLOAT"))
	assert.Equal(t, int64(0), GetIntEnv("LR_BAD"))
	assert.False(t, GetBoolEnv("LR_MISSING"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Error(t, LoadEnv(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LR_FROM_DOTENV=base\nLR_SHARED=base\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("LR_SHARED=test\n"), 0o644))
	t.Setenv("LR_FROM_DOTENV", "")
	os.Unsetenv("LR_FROM_DOTENV")
	t.Setenv("LR_SHARED", "")
	os.Unsetenv("LR_SHARED")

	require.NoError(t, LoadEnv("test"))
	assert.Equal(t, "base", GetEnv("LR_FROM_DOTENV"))
	assert.Equal(t, "test", GetEnv("LR_SHARED"))
}
