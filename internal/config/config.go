package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию движка
type Config struct {
	Database DatabaseConfig
	Security SecurityConfig
	Trading  TradingConfig
	Web      WebConfig
	Logging  LoggingConfig
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN возвращает строку подключения для lib/pq
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// Парольная фраза для расшифровки API ключей бирж
	EncryptionPassphrase string

	// Соль вывода ключа; должна совпадать с использованной при шифровании
	EncryptionSalt string
}

// TradingConfig - параметры торгового ядра
type TradingConfig struct {
	// WindowDuration - длительность одного торгового окна.
	// Все циклы (арбитраж, планировщик мультипутей) завершаются
	// на границе окна; внешний планировщик запускает ядро заново.
	WindowDuration time.Duration

	// ArbitragePace - пауза между итерациями арбитражного цикла
	ArbitragePace time.Duration

	// BookStaleAfter - максимальный возраст стаканов: если оба стакана
	// не получены за это время от начала запроса, возможность считается
	// устаревшей и итерация прерывается
	BookStaleAfter time.Duration

	// SchedulerTick - пауза между проходами планировщика мультипутей
	SchedulerTick time.Duration

	// MultipathConcurrency - максимум одновременно исполняемых планов
	MultipathConcurrency int

	// OrderTimeout - таймаут размещения одного ордера
	OrderTimeout time.Duration

	// BalancePollInterval / BalancePollTimeout - частота и предел
	// ожидания поступления баланса между ногами мультипути
	BalancePollInterval time.Duration
	BalancePollTimeout  time.Duration

	// DustNotional - порог пыли по умолчанию в базовой валюте рынка;
	// сделки с меньшим оборотом не стоят комиссии
	DustNotional float64

	// EasePercent - наценка за немедленное исполнение: настолько
	// сдвигается цена лимитного ордера в невыгодную сторону, чтобы он
	// исполнился сразу, а не висел открытым
	EasePercent float64
}

// WebConfig - настройки мониторингового HTTP сервера
type WebConfig struct {
	ListenAddr string
	Enabled    bool
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "cryptobot"),
			User:     getEnv("DB_USER", "cryptobot"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionPassphrase: getEnv("ENCRYPTION_PASSPHRASE", ""),
			EncryptionSalt:       getEnv("ENCRYPTION_SALT", "cryptobot-key-v1"),
		},
		Trading: TradingConfig{
			WindowDuration:       getEnvAsDuration("TRADING_WINDOW", 50*time.Minute),
			ArbitragePace:        getEnvAsDuration("ARBITRAGE_PACE", 5*time.Second),
			BookStaleAfter:       getEnvAsDuration("BOOK_STALE_AFTER", 7*time.Second),
			SchedulerTick:        getEnvAsDuration("SCHEDULER_TICK", 1*time.Second),
			MultipathConcurrency: getEnvAsInt("MULTIPATH_CONCURRENCY", 6),
			OrderTimeout:         getEnvAsDuration("ORDER_TIMEOUT", 30*time.Second),
			BalancePollInterval:  getEnvAsDuration("BALANCE_POLL_INTERVAL", 2*time.Second),
			BalancePollTimeout:   getEnvAsDuration("BALANCE_POLL_TIMEOUT", 3*time.Minute),
			DustNotional:         getEnvAsFloat("DUST_NOTIONAL", 0.0005),
			EasePercent:          getEnvAsFloat("EASE_PERCENT", 0.1),
		},
		Web: WebConfig{
			ListenAddr: getEnv("WEB_LISTEN_ADDR", ":8080"),
			Enabled:    getEnvAsBool("WEB_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет согласованность конфигурации
func (c *Config) validate() error {
	if c.Trading.WindowDuration <= 0 {
		return fmt.Errorf("trading window must be positive, got %v", c.Trading.WindowDuration)
	}
	if c.Trading.MultipathConcurrency <= 0 {
		return fmt.Errorf("multipath concurrency must be positive, got %d", c.Trading.MultipathConcurrency)
	}
	if c.Trading.BookStaleAfter <= 0 {
		return fmt.Errorf("book staleness timeout must be positive, got %v", c.Trading.BookStaleAfter)
	}
	if c.Trading.DustNotional < 0 {
		return fmt.Errorf("dust notional must not be negative, got %f", c.Trading.DustNotional)
	}
	return nil
}

// DayAllowed сообщает, разрешена ли торговля в указанный день недели.
// Сейчас всегда true: понедельная фильтрация ждёт продуктового решения.
func (c *Config) DayAllowed(t time.Time) bool {
	_ = t.Weekday()
	return true
}

// ============ Хелперы чтения окружения ============

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
