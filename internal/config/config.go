package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Synthesizer SynthesizerConfig `mapstructure:"synthesizer"`
	App         AppConfig         `mapstructure:"app"`
	Timing      TimingConfig      `mapstructure:"timing"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type RedisConfig struct {
	URI string `mapstructure:"uri"`
}

type TranscriberConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SynthesizerConfig configures spoken prompts. Without a base URL prompts
// are sent as text only.
type SynthesizerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Voice   string        `mapstructure:"voice"`
	Rate    float64       `mapstructure:"rate"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AppConfig struct {
	LocalesDir        string `mapstructure:"locales_dir"`
	CatalogPath       string `mapstructure:"catalog_path"`
	DefaultLanguage   string `mapstructure:"default_language"`
	RecognitionLocale string `mapstructure:"recognition_locale"`
	VisibleSentences  int    `mapstructure:"visible_sentences"`
}

// TimingConfig holds the practice session delays
type TimingConfig struct {
	PlaybackSafety    time.Duration `mapstructure:"playback_safety"`
	PostPlaybackDelay time.Duration `mapstructure:"post_playback_delay"`
	RestartDebounce   time.Duration `mapstructure:"restart_debounce"`
	IsolatedTurn      time.Duration `mapstructure:"isolated_turn"`
	WrongClear        time.Duration `mapstructure:"wrong_clear"`
	SuccessClear      time.Duration `mapstructure:"success_clear"`
	JustMatchedClear  time.Duration `mapstructure:"just_matched_clear"`
	// VoiceTurn bounds how long the bot waits for a voice note
	VoiceTurn time.Duration `mapstructure:"voice_turn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load loads configuration from a YAML file with environment variable overrides.
// A .env file in the working directory is applied first when present.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Set config file
	v.SetConfigFile(filename)

	// Set defaults
	v.SetDefault("app.locales_dir", "locales")
	v.SetDefault("app.catalog_path", "catalog.yaml")
	v.SetDefault("app.default_language", "en")
	v.SetDefault("app.recognition_locale", "en-US")
	v.SetDefault("app.visible_sentences", 5)
	v.SetDefault("transcriber.timeout", 30*time.Second)
	v.SetDefault("synthesizer.voice", "en-US")
	v.SetDefault("synthesizer.rate", 0.9)
	v.SetDefault("synthesizer.timeout", 30*time.Second)
	v.SetDefault("timing.playback_safety", 10*time.Second)
	v.SetDefault("timing.post_playback_delay", 300*time.Millisecond)
	v.SetDefault("timing.restart_debounce", 100*time.Millisecond)
	v.SetDefault("timing.isolated_turn", 6*time.Second)
	v.SetDefault("timing.wrong_clear", 2*time.Second)
	v.SetDefault("timing.success_clear", 2*time.Second)
	v.SetDefault("timing.just_matched_clear", 800*time.Millisecond)
	v.SetDefault("timing.voice_turn", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Environment variable configuration
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if c.Redis.URI == "" {
		return fmt.Errorf("redis URI is required")
	}
	if c.Transcriber.BaseURL == "" {
		return fmt.Errorf("transcriber base URL is required")
	}
	if c.Transcriber.APIKey == "" {
		return fmt.Errorf("transcriber API key is required")
	}
	if c.Synthesizer.Rate <= 0 || c.Synthesizer.Rate > 4 {
		return fmt.Errorf("synthesizer.rate must be in (0, 4], got %g", c.Synthesizer.Rate)
	}
	if c.App.VisibleSentences <= 0 {
		return fmt.Errorf("app.visible_sentences must be positive, got %d", c.App.VisibleSentences)
	}

	timings := map[string]time.Duration{
		"playback_safety":     c.Timing.PlaybackSafety,
		"post_playback_delay": c.Timing.PostPlaybackDelay,
		"restart_debounce":    c.Timing.RestartDebounce,
		"isolated_turn":       c.Timing.IsolatedTurn,
		"wrong_clear":         c.Timing.WrongClear,
		"success_clear":       c.Timing.SuccessClear,
		"just_matched_clear":  c.Timing.JustMatchedClear,
		"voice_turn":          c.Timing.VoiceTurn,
	}
	for name, d := range timings {
		if d < 0 {
			return fmt.Errorf("timing.%s must not be negative, got %s", name, d)
		}
	}
	return nil
}
