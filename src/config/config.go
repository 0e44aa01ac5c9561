package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvFileEnvVar        = "SCREEN_TRANSLATE_ENV"
	APISecretPathEnvVar  = "SPARK_API_SECRET_FILE"
	DefaultRegionFile    = "subtask_region.json"
	DefaultOCRLanguage   = "eng"
	DefaultPrimaryURL    = "https://ftapi.pythonanywhere.com/translate"
	DefaultSparkHost     = "spark-openapi.cn-huabei-1.xf-yun.com"
	DefaultAPIAddr       = "127.0.0.1:8765"
	DefaultProvider      = "remote-primary"
	DefaultTimeoutSec    = 10
	MaxTranslateTimeout  = 10
	DefaultChatMaxTokens = 2048
	DefaultChatPingSec   = 30
)

type LoadOptions struct {
	EnvFileOverride  string
	ProviderOverride string
}

type Config struct {
	RegionFile     string
	OCRLanguage    string
	TessdataPrefix string

	Provider            string
	PrimaryURL          string
	SecondaryURL        string
	TranslateTimeoutSec int

	SparkAppID       string
	SparkAPIKey      string
	SparkAPISecret   string
	SparkSecretPath  string
	SparkHost        string
	SparkAssistantID string
	ChatMaxTokens    int
	ChatPingSec      int

	Workers           int
	APIAddr           string
	EnableFileLogging bool
}

// ChatConfigured reports whether every credential the chat session needs is present.
func (c *Config) ChatConfigured() bool {
	return c.SparkAppID != "" && c.SparkAPIKey != "" && c.SparkAPISecret != "" && c.SparkAssistantID != ""
}

// SparkPath is the assistant endpoint path that gets signed.
func (c *Config) SparkPath() string {
	return "/v1/assistants/" + c.SparkAssistantID
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) explicit --env-file
	// 2) .env in the executable directory
	// 3) SCREEN_TRANSLATE_ENV pointing at a config file
	envPath := resolveEnvPath(opts)
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	secretPath := resolveSecretPath(dotenvValues)

	cfg := &Config{
		RegionFile:          getEnvWithDefault("REGION_FILE", defaultRegionFile()),
		OCRLanguage:         getEnvWithDefault("OCR_LANG", DefaultOCRLanguage),
		TessdataPrefix:      strings.TrimSpace(os.Getenv("OCR_TESSDATA")),
		Provider:            resolveProvider(opts),
		PrimaryURL:          getEnvWithDefault("TRANSLATE_PRIMARY_URL", DefaultPrimaryURL),
		SecondaryURL:        strings.TrimSpace(os.Getenv("TRANSLATE_SECONDARY_URL")),
		TranslateTimeoutSec: clamp(getEnvInt("TRANSLATE_TIMEOUT_SEC", DefaultTimeoutSec), 1, MaxTranslateTimeout),
		SparkAppID:          strings.TrimSpace(os.Getenv("SPARK_APP_ID")),
		SparkAPIKey:         strings.TrimSpace(os.Getenv("SPARK_API_KEY")),
		SparkAPISecret:      resolveSecret(secretPath),
		SparkSecretPath:     secretPath,
		SparkHost:           getEnvWithDefault("SPARK_HOST", DefaultSparkHost),
		SparkAssistantID:    strings.TrimSpace(os.Getenv("SPARK_ASSISTANT_ID")),
		ChatMaxTokens:       getEnvInt("CHAT_MAX_TOKENS", DefaultChatMaxTokens),
		ChatPingSec:         getEnvInt("CHAT_PING_SEC", DefaultChatPingSec),
		Workers:             getEnvInt("WORKERS", 0),
		APIAddr:             getEnvWithDefault("API_ADDR", DefaultAPIAddr),
		EnableFileLogging:   strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}

	return cfg, nil
}

func resolveEnvPath(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.EnvFileOverride); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func defaultRegionFile() string {
	execPath, err := os.Executable()
	if err != nil {
		return DefaultRegionFile
	}
	return filepath.Join(filepath.Dir(execPath), DefaultRegionFile)
}

func resolveSecretPath(dotenvValues map[string]string) string {
	keyPath := strings.TrimSpace(os.Getenv(APISecretPathEnvVar))
	if dotenvPath := strings.TrimSpace(dotenvValues[APISecretPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}
	return keyPath
}

// resolveSecret prefers the secret file over the plain env var.
func resolveSecret(keyPath string) string {
	if keyPath != "" {
		if data, err := os.ReadFile(keyPath); err == nil {
			if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
				return fileKey
			}
		}
	}

	return strings.TrimSpace(os.Getenv("SPARK_API_SECRET"))
}

func resolveProvider(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.ProviderOverride); override != "" {
		return strings.ToLower(override)
	}
	return strings.ToLower(getEnvWithDefault("TRANSLATE_PROVIDER", DefaultProvider))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
