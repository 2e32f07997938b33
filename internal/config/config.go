package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"medquiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port          string `yaml:"port"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		// TTL of cached quiz items.
		TTL       string `yaml:"ttl"`
		SeedDemo  bool   `yaml:"seed_demo"`
		PageLimit int    `yaml:"page_limit"`
	} `yaml:"quiz"`
	Auth struct {
		SessionSecret  string `yaml:"session_secret"`
		SessionTTL     string `yaml:"session_ttl"`
		HandshakeTTL   string `yaml:"handshake_ttl"`
		AllowTokenless bool   `yaml:"allow_tokenless"`
		BcryptCost     int    `yaml:"bcrypt_cost"`
		SecureCookie   bool   `yaml:"secure_cookie"`
	} `yaml:"auth"`
	Telegram struct {
		Token      string `yaml:"token"`
		BotName    string `yaml:"bot_name"`
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"telegram"`
	Tutor struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"tutor"`
	AMQP struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"amqp"`
	Categories []domain.Category `yaml:"categories"`
}

// Load reads YAML config from path, then applies .env and environment overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("config: %s not found, using defaults and environment", path)
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Server.PublicBaseURL, "PUBLIC_BASE_URL")
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Auth.SessionSecret, "SESSION_SECRET")
	override(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	override(&cfg.Telegram.BotName, "TELEGRAM_BOT_NAME")
	override(&cfg.Telegram.WebhookURL, "TELEGRAM_WEBHOOK_URL")
	override(&cfg.Tutor.APIKey, "GEMINI_API_KEY")
	override(&cfg.AMQP.URL, "AMQP_URL")
	if v, ok := os.LookupEnv("AUTH_ALLOW_TOKENLESS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.AllowTokenless = b
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost:" + cfg.Server.Port
	}
	if cfg.Telegram.BotName == "" {
		cfg.Telegram.BotName = "MedQuizBot"
	}
	if cfg.Quiz.PageLimit <= 0 {
		cfg.Quiz.PageLimit = domain.DefaultTotalQuestions
	}
}

func override(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
