package config

import (
	"log/slog"
	"strings"
	"time"
)

const (
	secretService   = "reuse"
	apiKeyAccount   = "gemini_api_key"
	apiTokenAccount = "api_token"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	Storage StorageConfig
	Imaging ImagingConfig
	Intake  IntakeConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type GeminiConfig struct {
	BaseURL     string
	VisionModel string
	TextModel   string
	Timeout     time.Duration
	APIKey      string
}

type StorageConfig struct {
	DataDir string
}

type ImagingConfig struct {
	MaxDimension int
}

type IntakeConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Gemini: GeminiConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/models",
			VisionModel: "gemini-2.5-flash",
			TextModel:   "gemini-2.5-flash",
			Timeout:     60 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Imaging: ImagingConfig{
			MaxDimension: 1024,
		},
		Intake: IntakeConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// HasAPIKey reports whether a Gemini API key was found anywhere.
func (c Config) HasAPIKey() bool {
	return c.Gemini.APIKey != ""
}

// SlogLevel maps Log.Level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.reuse.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/reuse/config.json
// and secrets fall back to $XDG_DATA_HOME/reuse/secrets.json.
//
// Environment variables (REUSE_*) override backend values on all platforms.
// A missing Gemini API key is not an error; see Config.HasAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get(secretService, apiKeyAccount); err == nil {
			cfg.Gemini.APIKey = strings.TrimSpace(key)
		}
	}

	return cfg, nil
}

// MissingKeyHint tells the user where the Gemini API key can be provided.
func MissingKeyHint() string {
	return "set REUSE_GEMINI_API_KEY or run `reuse config set-key`" + apiKeyHint()
}
