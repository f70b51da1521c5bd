package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/annel0/knapping/internal/knapping"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса обработки камня
type Config struct {
	Knapping  KnappingConfig  `yaml:"knapping"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// KnappingConfig параметры движка обработки
type KnappingConfig struct {
	MistakeAllowance        int     `yaml:"mistake_allowance"`
	PerfectKnappingBonus    float64 `yaml:"perfect_knapping_bonus"`
	FractureConeAngle       int     `yaml:"fracture_cone_angle"`
	FractureSpreadRate      float64 `yaml:"fracture_spread_rate"`
	FractureDecay           float64 `yaml:"fracture_decay"`
	FractureBaseProbability float64 `yaml:"fracture_base_probability"`
	Mode                    string  `yaml:"mode"`          // default | advanced
	Seed                    int64   `yaml:"seed"`          // 0 - сид от времени
	PatternsFile            string  `yaml:"patterns_file"` // YAML с шаблонами
}

type ServerConfig struct {
	RESTPort     int `yaml:"rest_port"`
	ShutdownSecs int `yaml:"shutdown_seconds"`
}

// StorageConfig настройки хранилищ. Пустой адрес отключает соответствующий бэкенд.
type StorageConfig struct {
	DataPath     string      `yaml:"data_path"` // BadgerDB снимки заготовок
	RedisAddr    string      `yaml:"redis_addr"`
	RedisDB      int         `yaml:"redis_db"`
	LedgerTTLMin int         `yaml:"ledger_ttl_minutes"`
	Maria        MariaConfig `yaml:"maria"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Enabled  bool   `yaml:"enabled"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults возвращает конфигурацию по умолчанию
func Defaults() *Config {
	engine := knapping.DefaultConfig()
	return &Config{
		Knapping: KnappingConfig{
			MistakeAllowance:        engine.MistakeAllowance,
			PerfectKnappingBonus:    engine.PerfectBonus,
			FractureConeAngle:       engine.Fracture.ConeAngle,
			FractureSpreadRate:      engine.Fracture.SpreadRate,
			FractureDecay:           engine.Fracture.Decay,
			FractureBaseProbability: engine.Fracture.BaseProbability,
			Mode:                    knapping.ModeAdvanced.String(),
			PatternsFile:            "assets/patterns.yaml",
		},
		Server: ServerConfig{
			ShutdownSecs: 5,
		},
		Storage: StorageConfig{
			DataPath:     "data",
			LedgerTTLMin: 60,
			Maria: MariaConfig{
				Host:     "localhost",
				Port:     3306,
				Database: "knapping",
			},
		},
		EventBus: EventBusConfig{
			Stream:    "KNAPPING",
			Retention: 24,
			Buffer:    1024,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "knapd",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EngineConfig переводит YAML-параметры в нормализованную конфигурацию движка
func (k KnappingConfig) EngineConfig() knapping.Config {
	return knapping.Config{
		MistakeAllowance: k.MistakeAllowance,
		PerfectBonus:     k.PerfectKnappingBonus,
		Fracture: knapping.FractureConfig{
			ConeAngle:       k.FractureConeAngle,
			SpreadRate:      k.FractureSpreadRate,
			Decay:           k.FractureDecay,
			BaseProbability: k.FractureBaseProbability,
		},
	}.Normalize()
}

// EngineMode возвращает режим обработки
func (k KnappingConfig) EngineMode() (knapping.Mode, error) {
	return knapping.ParseMode(k.Mode)
}

// LedgerTTL время жизни записи журнала в Redis
func (s StorageConfig) LedgerTTL() time.Duration {
	if s.LedgerTTLMin <= 0 {
		return 0
	}
	return time.Duration(s.LedgerTTLMin) * time.Minute
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "KNAP_REST_PORT", 8090)
}

// ShutdownTimeout время на корректное завершение
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownSecs) * time.Second
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV KNAP_CONFIG, иначе возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv("KNAP_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if _, err := cfg.Knapping.EngineMode(); err != nil {
		return nil, err
	}
	return cfg, nil
}
