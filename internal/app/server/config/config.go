package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath = ".env"

	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	defaultRunAddress = ":8080"
	defaultMigrations = "migrations/postgres"
	defaultSessionTTL = 24 * time.Hour
)

type Config struct {
	Env     string
	DB      DB
	Server  Server
	Logger  Logger
	Session Session
}

type DB struct {
	DatabaseURI string `mapstructure:"database_uri"`
	Migrations  string `mapstructure:"migrations_path"`
}

type Server struct {
	RunAddress      string        `mapstructure:"run_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Logger struct {
	LogLevel string `mapstructure:"log_level"`
}

type Session struct {
	TTL time.Duration `mapstructure:"session_ttl"`
}

// MustLoad загружает конфигурацию сервера
func MustLoad() *Config {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

func Load(v *viper.Viper) (*Config, error) {
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v.AutomaticEnv()
	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("RUN_ADDRESS", defaultRunAddress)
	v.SetDefault("MIGRATIONS_PATH", defaultMigrations)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SESSION_TTL", defaultSessionTTL)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg := &Config{
		Env: v.GetString("APP_ENV"),
		DB: DB{
			DatabaseURI: v.GetString("DATABASE_URI"),
			Migrations:  v.GetString("MIGRATIONS_PATH"),
		},
		Server: Server{
			RunAddress:      v.GetString("RUN_ADDRESS"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Logger:  Logger{LogLevel: v.GetString("LOG_LEVEL")},
		Session: Session{TTL: v.GetDuration("SESSION_TTL")},
	}

	if cfg.DB.DatabaseURI == "" {
		return nil, fmt.Errorf("DATABASE_URI не может быть пустым")
	}
	return cfg, nil
}
