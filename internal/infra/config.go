package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Presence PresenceConfig `mapstructure:"presence"`
	Lease    LeaseConfig    `mapstructure:"lease"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig — отдельный порт для Prometheus.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Mailbox и Rate Limiter).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам операторских токенов
// и статический allow-list токенов агентов (token -> имя агента).
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte

	// Неизвестный токен отбивается до любого обращения к хранилищам
	AgentTokens map[string]string `mapstructure:"agent_tokens"`
}

// QueueConfig — параметры очереди задач.
type QueueConfig struct {
	DefaultPriority string `mapstructure:"default_priority"`
	ListLimit       int    `mapstructure:"list_limit"`
}

// MailboxConfig — время жизни неразобранной команды.
type MailboxConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LimiterConfig — скользящее окно общего чата.
type LimiterConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// PresenceConfig — порог, после которого sender считается offline.
type PresenceConfig struct {
	OfflineThreshold time.Duration `mapstructure:"offline_threshold"`
}

// LeaseConfig — расширение поверх исходного протокола: возврат
// протухших claim обратно в pending. По умолчанию выключено,
// поведение очереди тогда полностью совпадает с базовым.
type LeaseConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Duration time.Duration `mapstructure:"duration"`
	Schedule string        `mapstructure:"schedule"` // cron-выражение для reclaimd
}

// AgentConfig — настройки референсного поллера agentd.
type AgentConfig struct {
	Name         string        `mapstructure:"name"`
	Type         string        `mapstructure:"type"`
	Token        string        `mapstructure:"token"`
	ConsoleURL   string        `mapstructure:"console_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Capabilities []string      `mapstructure:"capabilities"`
}

// AuditConfig задает буферизацию трейла координационных событий.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	// WatchConfig нужен для динамической смены уровня логирования
	v.WatchConfig()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("queue.default_priority", "normal")
	v.SetDefault("queue.list_limit", 100)
	v.SetDefault("mailbox.ttl", 10*time.Minute)
	v.SetDefault("limiter.limit", 30)
	v.SetDefault("limiter.window", 60*time.Second)
	v.SetDefault("presence.offline_threshold", 5*time.Minute)
	v.SetDefault("lease.enabled", false)
	v.SetDefault("lease.duration", 15*time.Minute)
	v.SetDefault("lease.schedule", "@every 1m")
	v.SetDefault("agent.poll_interval", 10*time.Second)
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
