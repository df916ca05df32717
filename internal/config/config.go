package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBDriver string `toml:"db_driver"`
	DBDsn    string `toml:"db_dsn"`

	HTTPAddr    string   `toml:"http_addr"`
	HealthAddr  string   `toml:"health_addr"`
	JWTSecret   string   `toml:"jwt_secret"`
	CORSOrigins []string `toml:"cors_origins"`

	BotToken     string `toml:"bot_token"`
	AdminChatID  string `toml:"admin_chat_id"`
	SuperAdminID string `toml:"super_admin_id"`

	DefaultEmployeeRate   string `toml:"default_employee_rate"`
	PayoutCeilingRatio    string `toml:"payout_ceiling_ratio"`
	ReverseSalaryOnDelete bool   `toml:"reverse_salary_on_delete"`
	Timezone              string `toml:"timezone"`

	ArchiveCron string `toml:"archive_cron"`
	ReportCron  string `toml:"report_cron"`

	LogLevel string `toml:"log_level"`

	// Разобранные значения
	EmployeeRate decimal.Decimal `toml:"-"`
	CeilingRatio decimal.Decimal `toml:"-"`
	Location     *time.Location  `toml:"-"`
}

func defaults() *Config {
	return &Config{
		DBDriver:            "sqlite",
		DBDsn:               "ledger.db",
		HTTPAddr:            "0.0.0.0:8081",
		HealthAddr:          "0.0.0.0:8080",
		DefaultEmployeeRate: "52",
		PayoutCeilingRatio:  "0.85",
		ArchiveCron:         "10 0 * * *",
		ReportCron:          "0 9 * * *",
		LogLevel:            "info",
	}
}

// Load собирает конфигурацию: .env, затем TOML-файл (path или LEDGER_CONFIG), затем переменные окружения
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to read .env", "error", err)
	}

	cfg := defaults()

	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.DBDriver = getEnvOrDefault("DB_DRIVER", cfg.DBDriver)
	cfg.DBDsn = getEnvOrDefault("DB_DSN", cfg.DBDsn)
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HealthAddr = getEnvOrDefault("HEALTH_ADDR", cfg.HealthAddr)
	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	cfg.BotToken = getEnvOrDefault("BOT_TOKEN", cfg.BotToken)
	cfg.AdminChatID = getEnvOrDefault("ADMIN_CHAT_ID", cfg.AdminChatID)
	cfg.SuperAdminID = getEnvOrDefault("SUPER_ADMIN_ID", cfg.SuperAdminID)

	cfg.DefaultEmployeeRate = getEnvOrDefault("DEFAULT_EMPLOYEE_RATE", cfg.DefaultEmployeeRate)
	cfg.PayoutCeilingRatio = getEnvOrDefault("PAYOUT_CEILING_RATIO", cfg.PayoutCeilingRatio)
	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)
	if v := os.Getenv("REVERSE_SALARY_ON_DELETE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("REVERSE_SALARY_ON_DELETE: %w", err)
		}
		cfg.ReverseSalaryOnDelete = b
	}

	cfg.ArchiveCron = getEnvOrDefault("ARCHIVE_CRON", cfg.ArchiveCron)
	cfg.ReportCron = getEnvOrDefault("REPORT_CRON", cfg.ReportCron)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse() error {
	rate, err := decimal.NewFromString(c.DefaultEmployeeRate)
	if err != nil || !rate.IsPositive() {
		return fmt.Errorf("invalid default employee rate %q, want > 0", c.DefaultEmployeeRate)
	}
	ratio, err := decimal.NewFromString(c.PayoutCeilingRatio)
	if err != nil || !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid payout ceiling ratio %q, want (0, 1]", c.PayoutCeilingRatio)
	}
	c.EmployeeRate, c.CeilingRatio = rate, ratio

	c.Location = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		c.Location = loc
	}

	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// SlogLevel переводит LOG_LEVEL в уровень slog; неизвестное значение - info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// AdminChat - чат для отчётов; если ADMIN_CHAT_ID не задан, отчёты идут суперадмину
func (c *Config) AdminChat() (int64, bool) {
	for _, v := range []string{c.AdminChatID, c.SuperAdminID} {
		if v == "" {
			continue
		}
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
