package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Conversational model
	DeepSeekAPIURL  string
	DeepSeekAPIKey  string
	DeepSeekModel   string
	LLMTimeout      time.Duration
	LLMTemperature  float64
	LLMMaxTokens    int
	GeminiAPIKey    string
	GeminiModelID   string
	SystemPrompt    string
	SystemPromptFile string

	// Calendar booking
	CalendarID            string
	GoogleCredentialsFile string
	BookingTimeout        time.Duration
	AllowFakeBookings     bool

	// Dialogue policy
	Timezone          string
	ConfirmOffset     time.Duration
	EventDuration     time.Duration
	ClarificationCap  int
	DefaultSpecialist string
	AffirmativeTokens []string
	SpecialistVocab   []string

	// Session storage
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration
	DatabaseURL   string

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// defaultSystemPrompt is used when no SYSTEM_PROMPT_FILE is configured.
const defaultSystemPrompt = "Ты — регистратор поликлиники. По описанию симптомов определи, " +
	"к какому врачу направить пациента. Если информации недостаточно, задай один уточняющий вопрос. " +
	"Ответ должен содержать фразу вида «Рекомендуем обратиться к <специалист>»."

// Load reads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DeepSeekAPIURL:   getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com/v1/chat/completions"),
		DeepSeekAPIKey:   getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekModel:    getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMTemperature:   getEnvAsFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:     getEnvAsInt("LLM_MAX_TOKENS", 1024),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:    getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		SystemPromptFile: getEnv("SYSTEM_PROMPT_FILE", ""),

		CalendarID:            getEnv("CALENDAR_ID", "primary"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		BookingTimeout:        getEnvAsDuration("BOOKING_TIMEOUT", 15*time.Second),
		AllowFakeBookings:     getEnvAsBool("ALLOW_FAKE_BOOKINGS", false),

		Timezone:          getEnv("TIMEZONE", "Europe/Moscow"),
		ConfirmOffset:     getEnvAsDuration("CONFIRM_OFFSET", 3*time.Hour),
		EventDuration:     getEnvAsDuration("EVENT_DURATION", 30*time.Minute),
		ClarificationCap:  getEnvAsInt("CLARIFICATION_CAP", 1),
		DefaultSpecialist: getEnv("DEFAULT_SPECIALIST", "терапевт"),
		AffirmativeTokens: getEnvAsList("AFFIRMATIVE_TOKENS", nil),
		SpecialistVocab:   getEnvAsList("SPECIALIST_VOCABULARY", nil),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),
	}

	cfg.SystemPrompt = defaultSystemPrompt
	if cfg.SystemPromptFile != "" {
		if data, err := os.ReadFile(cfg.SystemPromptFile); err == nil {
			cfg.SystemPrompt = strings.TrimSpace(string(data))
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsList splits a comma-separated value, trimming whitespace and
// dropping empty entries. Returns fallback when the variable is unset.
func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
