// Package config holds the daemon settings. Values come from built-in
// defaults, an optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dit/internal/ipc"
)

const (
	TranslatorNone   = "none"
	TranslatorLibre  = "libre"
	TranslatorOpenAI = "openai"
)

type Config struct {
	APIBase  string `yaml:"api_base"`
	Locale   string `yaml:"locale"`
	Greeting string `yaml:"greeting"`
	Proxy    string `yaml:"proxy"`
	// Timeout for backend and translation calls; zero waits forever.
	Timeout time.Duration `yaml:"timeout"`
	Socket  string        `yaml:"socket"`
	Chime   string        `yaml:"chime"`

	Phrases   Phrases   `yaml:"phrases"`
	Voice     Voice     `yaml:"voice"`
	Translate Translate `yaml:"translate"`
	Whisper   Whisper   `yaml:"whisper"`
	Recorder  Recorder  `yaml:"recorder"`
	Bus       Bus       `yaml:"bus"`
	Duck      Duck      `yaml:"duck"`
}

type Phrases struct {
	Wake []string `yaml:"wake"`
	Stop []string `yaml:"stop"`
}

// Voice holds the regexps a synthesizer voice is preferred by.
type Voice struct {
	PreferName string `yaml:"prefer_name"`
	PreferLang string `yaml:"prefer_lang"`
}

type Translate struct {
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type Whisper struct {
	Model string `yaml:"model"`
	// CLI, when set, runs this whisper.cpp binary instead of the bindings.
	CLI     string `yaml:"cli"`
	Threads int    `yaml:"threads"`
}

type Recorder struct {
	SilenceRMS float64       `yaml:"silence_rms"`
	Silence    time.Duration `yaml:"silence"`
	MaxLength  time.Duration `yaml:"max_length"`
}

type Bus struct {
	URL  string `yaml:"url"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Duck struct {
	Enabled   bool          `yaml:"enabled"`
	Factor    float64       `yaml:"factor"`
	MinVolume int           `yaml:"min_volume"`
	Fade      time.Duration `yaml:"fade"`
	SelfNames []string      `yaml:"self_names"`
}

func Default() Config {
	return Config{
		APIBase:  "http://localhost:8000/",
		Locale:   "en-IN",
		Greeting: "Yes, how can I help?",
		Socket:   ipc.SocketPath,
		Translate: Translate{
			Provider: TranslatorNone,
			URL:      "https://libretranslate.com/translate",
		},
		Whisper: Whisper{
			Model: "third_party/whisper.cpp/models/ggml-medium.bin",
		},
		Bus: Bus{From: "dit", To: "panel"},
		Duck: Duck{
			Factor:    0.3,
			MinVolume: 10,
			Fade:      300 * time.Millisecond,
			SelfNames: []string{"espeak-ng", "dit"},
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (when path
// is not empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("DIT_API_BASE", &cfg.APIBase)
	str("DIT_LOCALE", &cfg.Locale)
	str("DIT_PROXY", &cfg.Proxy)
	str("DIT_SOCKET", &cfg.Socket)
	str("DIT_CHIME", &cfg.Chime)
	str("DIT_TRANSLATOR", &cfg.Translate.Provider)
	str("DIT_TRANSLATE_URL", &cfg.Translate.URL)
	str("DIT_TRANSLATE_KEY", &cfg.Translate.APIKey)
	str("DIT_WHISPER_MODEL", &cfg.Whisper.Model)
	str("DIT_WHISPER_CLI", &cfg.Whisper.CLI)
	str("DIT_BUS_URL", &cfg.Bus.URL)

	if cfg.Translate.Provider == TranslatorOpenAI && cfg.Translate.APIKey == "" {
		str("OPENAI_API_KEY", &cfg.Translate.APIKey)
	}

	if v := getenv("DIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: DIT_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}

	if v := getenv("DIT_DUCK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DIT_DUCK: %w", err)
		}
		cfg.Duck.Enabled = b
	}

	return nil
}

// Validate returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.APIBase == "" {
		errs = append(errs, errors.New("api_base must not be empty"))
	}
	if cfg.Locale == "" {
		errs = append(errs, errors.New("locale must not be empty"))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %s must not be negative", cfg.Timeout))
	}

	providers := []string{TranslatorNone, TranslatorLibre, TranslatorOpenAI}
	if !slices.Contains(providers, cfg.Translate.Provider) {
		errs = append(errs, fmt.Errorf("translate.provider %q is invalid; valid values: none, libre, openai", cfg.Translate.Provider))
	}
	if cfg.Translate.Provider == TranslatorLibre && cfg.Translate.URL == "" {
		errs = append(errs, errors.New("translate.url is required for the libre provider"))
	}
	if cfg.Translate.Provider == TranslatorOpenAI && cfg.Translate.APIKey == "" {
		errs = append(errs, errors.New("translate.api_key or OPENAI_API_KEY is required for the openai provider"))
	}

	if cfg.Duck.Factor < 0 || cfg.Duck.Factor > 1 {
		errs = append(errs, fmt.Errorf("duck.factor %v must be within [0, 1]", cfg.Duck.Factor))
	}

	return errors.Join(errs...)
}
