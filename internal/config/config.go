package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	PublicBaseURL string
	Server        ServerConfig
	MySQL         MySQLConfig
	Redis         RedisConfig
	JWT           JWTConfig
	SMTP          SMTPConfig
	Kafka         KafkaConfig
	Workflow      WorkflowConfig
	RateLimit     RateLimitConfig
	Log           LoggingConfig
}

type ServerConfig struct {
	Addr            string
	Mode            string
	ShutdownTimeout time.Duration
}

type MySQLConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type KafkaConfig struct {
	Brokers    []string
	EmailTopic string
	PushTopic  string
	GroupID    string
}

type WorkflowConfig struct {
	AdminBudgetThreshold float64
	MaxClubsPerStudent   int
	ChecklistGrace       time.Duration
	MinEventPhotos       int
	SchedulerInterval    time.Duration
	OutboxInterval       time.Duration
	OutboxMaxRetry       int
}

type RateLimitConfig struct {
	LoginPerMinute int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// Load 读取 .env（可选）和 CLUBS_ 前缀的环境变量
func Load() (Config, error) {
	if path := os.Getenv("CLUBS_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("clubs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("public_base_url", "http://localhost:8080")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_ttl", 30*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "KMIT Clubs Hub <no-reply@localhost>")

	v.SetDefault("kafka.brokers", "127.0.0.1:9092")
	v.SetDefault("kafka.email_topic", "clubs-hub.notifications.email")
	v.SetDefault("kafka.push_topic", "clubs-hub.notifications.push")
	v.SetDefault("kafka.group_id", "clubs-hub-mailer")

	v.SetDefault("workflow.admin_budget_threshold", 5000.0)
	v.SetDefault("workflow.max_clubs_per_student", 3)
	v.SetDefault("workflow.checklist_grace", 7*24*time.Hour)
	v.SetDefault("workflow.min_event_photos", 5)
	v.SetDefault("workflow.scheduler_interval", time.Minute)
	v.SetDefault("workflow.outbox_interval", time.Second)
	v.SetDefault("workflow.outbox_max_retry", 5)

	v.SetDefault("ratelimit.login_per_minute", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Environment:   v.GetString("environment"),
		PublicBaseURL: strings.TrimRight(v.GetString("public_base_url"), "/"),
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			Mode:            v.GetString("server.mode"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		MySQL: MySQLConfig{
			DSN:          v.GetString("mysql.dsn"),
			MaxOpenConns: v.GetInt("mysql.max_open_conns"),
			MaxIdleConns: v.GetInt("mysql.max_idle_conns"),
		},
		Redis: RedisConfig{
			Addr:         v.GetString("redis.addr"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
		},
		JWT: JWTConfig{
			AccessSecret:  v.GetString("jwt.access_secret"),
			RefreshSecret: v.GetString("jwt.refresh_secret"),
			AccessTTL:     v.GetDuration("jwt.access_ttl"),
			RefreshTTL:    v.GetDuration("jwt.refresh_ttl"),
		},
		SMTP: SMTPConfig{
			Enabled:  v.GetBool("smtp.enabled"),
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(v.GetString("kafka.brokers")),
			EmailTopic: v.GetString("kafka.email_topic"),
			PushTopic:  v.GetString("kafka.push_topic"),
			GroupID:    v.GetString("kafka.group_id"),
		},
		Workflow: WorkflowConfig{
			AdminBudgetThreshold: v.GetFloat64("workflow.admin_budget_threshold"),
			MaxClubsPerStudent:   v.GetInt("workflow.max_clubs_per_student"),
			ChecklistGrace:       v.GetDuration("workflow.checklist_grace"),
			MinEventPhotos:       v.GetInt("workflow.min_event_photos"),
			SchedulerInterval:    v.GetDuration("workflow.scheduler_interval"),
			OutboxInterval:       v.GetDuration("workflow.outbox_interval"),
			OutboxMaxRetry:       v.GetInt("workflow.outbox_max_retry"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: v.GetInt("ratelimit.login_per_minute"),
		},
		Log: LoggingConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if cfg.MySQL.DSN == "" {
		return Config{}, errors.New("CLUBS_MYSQL_DSN is required")
	}
	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" {
		if !cfg.IsDevelopment() {
			return Config{}, errors.New("CLUBS_JWT_ACCESS_SECRET and CLUBS_JWT_REFRESH_SECRET are required")
		}
		cfg.JWT.AccessSecret = "dev-access-secret"
		cfg.JWT.RefreshSecret = "dev-refresh-secret"
	}
	if cfg.JWT.AccessSecret == cfg.JWT.RefreshSecret {
		return Config{}, errors.New("access and refresh secrets must differ")
	}
	if cfg.Workflow.MaxClubsPerStudent <= 0 {
		return Config{}, fmt.Errorf("invalid max clubs per student: %d", cfg.Workflow.MaxClubsPerStudent)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
