package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
	require.Equal(t, "en-IN", cfg.Locale)
	require.Zero(t, cfg.Timeout)
}

func TestDecode_Overlay(t *testing.T) {
	cfg := Default()
	err := decode(strings.NewReader(`
api_base: http://backend:9000/
locale: hi-IN
timeout: 30s
phrases:
  wake: [computer]
  stop: [halt, be quiet]
translate:
  provider: libre
duck:
  enabled: true
  fade: 150ms
`), &cfg)
	require.NoError(t, err)

	require.Equal(t, "http://backend:9000/", cfg.APIBase)
	require.Equal(t, "hi-IN", cfg.Locale)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, []string{"computer"}, cfg.Phrases.Wake)
	require.Equal(t, []string{"halt", "be quiet"}, cfg.Phrases.Stop)
	require.Equal(t, TranslatorLibre, cfg.Translate.Provider)
	require.Equal(t, "https://libretranslate.com/translate", cfg.Translate.URL, "unset keys keep defaults")
	require.True(t, cfg.Duck.Enabled)
	require.Equal(t, 150*time.Millisecond, cfg.Duck.Fade)
	require.NoError(t, Validate(&cfg))
}

func TestDecode_UnknownField(t *testing.T) {
	cfg := Default()
	err := decode(strings.NewReader("api_bsae: x\n"), &cfg)
	require.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, decode(strings.NewReader(""), &cfg))
	require.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envMap(map[string]string{
		"DIT_API_BASE":   "http://remote/",
		"DIT_TRANSLATOR": "openai",
		"OPENAI_API_KEY": "sk-test",
		"DIT_TIMEOUT":    "2m",
		"DIT_DUCK":       "true",
	}))
	require.NoError(t, err)

	require.Equal(t, "http://remote/", cfg.APIBase)
	require.Equal(t, TranslatorOpenAI, cfg.Translate.Provider)
	require.Equal(t, "sk-test", cfg.Translate.APIKey)
	require.Equal(t, 2*time.Minute, cfg.Timeout)
	require.True(t, cfg.Duck.Enabled)
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, applyEnv(&cfg, envMap(map[string]string{"DIT_TIMEOUT": "soon"})), "DIT_TIMEOUT")

	cfg = Default()
	require.ErrorContains(t, applyEnv(&cfg, envMap(map[string]string{"DIT_DUCK": "maybe"})), "DIT_DUCK")
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.APIBase = ""
	cfg.Translate.Provider = "deepl"
	cfg.Duck.Factor = 2

	err := Validate(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_base")
	require.Contains(t, err.Error(), "deepl")
	require.Contains(t, err.Error(), "duck.factor")
}

func TestValidate_OpenAINeedsKey(t *testing.T) {
	cfg := Default()
	cfg.Translate.Provider = TranslatorOpenAI

	require.ErrorContains(t, Validate(&cfg), "OPENAI_API_KEY")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("locale: fr-FR\n"), 0o600))

	t.Setenv("DIT_API_BASE", "http://from-env/")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "fr-FR", cfg.Locale)
	require.Equal(t, "http://from-env/", cfg.APIBase)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "config: open")
}
