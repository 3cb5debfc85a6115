package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fieldsync/internal/app/client/guard"
	"fieldsync/internal/app/client/resource"
	"fieldsync/internal/app/client/submission"
	"fieldsync/internal/domain/record"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".fieldsync"
	defaultSyncInterval  = 30
	defaultHeartbeat     = 15
	defaultTimeout       = 15

	deviceIDFile = "device_id"
)

// Engine настройки движка синхронизации из YAML-файла
type Engine struct {
	Resources   []resource.DescriptorConfig  `mapstructure:"resources"`
	NaturalKeys []guard.NaturalKey           `mapstructure:"natural_keys"`
	Schemas     []record.Schema              `mapstructure:"schemas"`
	References  []record.Reference           `mapstructure:"references"`
	Retry       submission.Policy            `mapstructure:"retry"`
	Policies    map[string]submission.Policy `mapstructure:"policies"`
}

type Config struct {
	Env           string `mapstructure:"app_env"`
	ServerAddress string `mapstructure:"server_address"`
	LogLevel      string `mapstructure:"log_level"`
	ConfigDir     string `mapstructure:"config_dir"`
	ConfigFile    string `mapstructure:"config_file"`
	TokenPath     string `mapstructure:"token_path"`
	DataPath      string `mapstructure:"data_path"`
	DeviceID      string `mapstructure:"device_id"`
	SyncInterval  int    `mapstructure:"sync_interval_seconds"`
	Heartbeat     int    `mapstructure:"heartbeat_seconds"`
	Timeout       int    `mapstructure:"request_timeout_seconds"`
	EnableTLS     bool   `mapstructure:"enable_tls"`

	Engine Engine `mapstructure:"-"`
}

// MustLoad загружает конфигурацию клиента
func MustLoad() *Config {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

// Load читает .env, переменные окружения и необязательный YAML-файл движка.
func Load(v *viper.Viper) (*Config, error) {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("SYNC_INTERVAL_SECONDS", defaultSyncInterval)
	v.SetDefault("HEARTBEAT_SECONDS", defaultHeartbeat)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", defaultTimeout)
	v.SetDefault("ENABLE_TLS", false)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, configDir)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg := &Config{
		Env:           v.GetString("APP_ENV"),
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		ConfigDir:     configDir,
		ConfigFile:    v.GetString("CONFIG_FILE"),
		TokenPath:     orDefault(v.GetString("TOKEN_PATH"), filepath.Join(configDir, "token")),
		DataPath:      orDefault(v.GetString("DATA_PATH"), filepath.Join(configDir, "fieldsync.db")),
		DeviceID:      v.GetString("DEVICE_ID"),
		SyncInterval:  v.GetInt("SYNC_INTERVAL_SECONDS"),
		Heartbeat:     v.GetInt("HEARTBEAT_SECONDS"),
		Timeout:       v.GetInt("REQUEST_TIMEOUT_SECONDS"),
		EnableTLS:     v.GetBool("ENABLE_TLS"),
	}

	engine, err := loadEngine(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Engine = engine

	if cfg.DeviceID == "" {
		id, err := deviceID(configDir)
		if err != nil {
			return nil, err
		}
		cfg.DeviceID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEngine без файла возвращает ресурсы, ключи и схемы по умолчанию.
func loadEngine(path string) (Engine, error) {
	engine := Engine{
		NaturalKeys: guard.DefaultKeys(),
		Retry:       submission.DefaultPolicy(),
	}
	if path == "" {
		engine.Resources = DefaultResources()
		return engine, nil
	}

	fv := viper.New()
	fv.SetConfigFile(path)
	if err := fv.ReadInConfig(); err != nil {
		return Engine{}, fmt.Errorf("read engine config %s: %w", path, err)
	}
	if err := fv.Unmarshal(&engine); err != nil {
		return Engine{}, fmt.Errorf("decode engine config %s: %w", path, err)
	}
	if !fv.IsSet("resources") {
		engine.Resources = DefaultResources()
	}
	return engine, nil
}

// DefaultResources справочники, которые агент держит локально
func DefaultResources() []resource.DescriptorConfig {
	return []resource.DescriptorConfig{
		{Key: "projects", StaleTime: time.Hour},
		{Key: "families", StaleTime: 30 * time.Minute},
		{Key: "forms", StaleTime: time.Hour},
		{Key: "surveys", StaleTime: time.Hour},
		{Key: record.KindSocialPost.Resource(), Path: "/api/v1/resources/posts", StaleTime: 5 * time.Minute},
	}
}

// deviceID читает идентификатор устройства или создает новый.
func deviceID(dir string) (string, error) {
	path := filepath.Join(dir, deviceIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address не может быть пустым")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("sync_interval_seconds не может быть отрицательным")
	}
	for _, r := range c.Engine.Resources {
		if r.Key == "" {
			return fmt.Errorf("resource без key")
		}
	}
	return nil
}

// BaseURL адрес сервера со схемой
func (c *Config) BaseURL() string {
	if strings.Contains(c.ServerAddress, "://") {
		return c.ServerAddress
	}
	if c.EnableTLS {
		return "https://" + c.ServerAddress
	}
	return "http://" + c.ServerAddress
}

func (c *Config) SyncEvery() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

func (c *Config) HeartbeatEvery() time.Duration {
	return time.Duration(c.Heartbeat) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
