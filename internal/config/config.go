package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // distroless環境でもORG_TIMEZONEを解決できるようにする

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL             string
	DatabaseConnectAttempts int // 起動時のPing再試行回数

	// Server
	ServerPort         string
	PublicBaseURL      string // 評価リンクの生成に使用する公開URL
	FrontendURL        string
	CORSAllowedOrigins []string

	// Email
	EmailHost          string
	EmailPort          int
	EmailUser          string
	EmailPass          string
	EmailUseTLS        bool
	EmailSendTimeout   time.Duration
	EmailRatePerMinute int

	// Notification sweeps
	OrgTimezone        *time.Location
	ReminderLead       time.Duration
	RatingRequestGrace time.Duration
	SweepInterval      time.Duration
	SkipEscalateAfter  int
	TradeLocation      string
	SchedulerInServer  bool

	// Signed tokens
	RatingLinkSecret string
	RatingLinkTTL    time.Duration
	AdminTokenSecret string

	// Rate Limit
	RateLimitPublic int // req/min/IP

	// Logging
	LogLevel slog.Level
}

// EmailConfigured は送信に必要な認証情報が揃っている場合にtrueを返す。
func (c *Config) EmailConfigured() bool {
	return c.EmailUser != "" && c.EmailPass != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しないのは正常系（本番では環境変数を直接渡す）
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.PublicBaseURL = strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	if cfg.PublicBaseURL == "" {
		missing = append(missing, "PUBLIC_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	tzName := getEnvString("ORG_TIMEZONE", "America/New_York")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid ORG_TIMEZONE %q: %w", tzName, err)
	}
	cfg.OrgTimezone = loc

	// Optional fields with defaults
	cfg.DatabaseConnectAttempts = getEnvInt("DATABASE_CONNECT_ATTEMPTS", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", "https://ict-dh-commerce-project-1.onrender.com")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{cfg.FrontendURL, "http://localhost:5500"})
	cfg.EmailHost = getEnvString("EMAIL_HOST", "smtp.gmail.com")
	cfg.EmailPort = getEnvInt("EMAIL_PORT", 587)
	cfg.EmailUser = os.Getenv("EMAIL_USER")
	cfg.EmailPass = os.Getenv("EMAIL_PASS")
	cfg.EmailUseTLS = getEnvBool("EMAIL_USE_TLS", true)
	cfg.EmailSendTimeout = getEnvDuration("EMAIL_SEND_TIMEOUT", 15*time.Second)
	cfg.EmailRatePerMinute = getEnvInt("EMAIL_RATE_PER_MINUTE", 60)
	cfg.ReminderLead = getEnvDuration("REMINDER_LEAD", time.Hour)
	cfg.RatingRequestGrace = getEnvDuration("RATING_REQUEST_GRACE", 20*time.Minute)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 5*time.Minute)
	cfg.SkipEscalateAfter = getEnvInt("SKIP_ESCALATE_AFTER", 12)
	cfg.TradeLocation = getEnvString("TRADE_LOCATION", "School cafeteria")
	cfg.SchedulerInServer = getEnvBool("SCHEDULER_IN_SERVER", true)
	cfg.RatingLinkSecret = os.Getenv("RATING_LINK_SECRET")
	cfg.RatingLinkTTL = getEnvDuration("RATING_LINK_TTL", 30*24*time.Hour)
	if cfg.RatingLinkTTL <= 0 {
		return nil, fmt.Errorf("invalid RATING_LINK_TTL %q: must be positive", os.Getenv("RATING_LINK_TTL"))
	}
	cfg.AdminTokenSecret = os.Getenv("ADMIN_TOKEN_SECRET")
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 60)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
