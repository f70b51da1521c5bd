package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/knapping/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей (0 - без истечения)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "knap:ledger:",
		TTL:       time.Hour,
	}
}

// RedisLedgerRepo хранит счётчики ошибок в Redis.
// TTL ограничивает жизнь записей брошенных сессий.
type RedisLedgerRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisLedgerRepo подключается к Redis и проверяет соединение
func NewRedisLedgerRepo(ctx context.Context, config *RedisConfig) (*RedisLedgerRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Журнал ошибок подключён к Redis %s", config.Addr)
	return newRedisLedgerRepo(client, config.KeyPrefix, config.TTL), nil
}

func newRedisLedgerRepo(client *redis.Client, prefix string, ttl time.Duration) *RedisLedgerRepo {
	return &RedisLedgerRepo{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
	}
}

func (r *RedisLedgerRepo) key(surfaceID string) string {
	return r.keyPrefix + surfaceID
}

// Save сохраняет счётчик
func (r *RedisLedgerRepo) Save(ctx context.Context, surfaceID string, mistakes int) error {
	if err := validateLedgerEntry(surfaceID, mistakes); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(surfaceID), mistakes, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// Load загружает счётчик
func (r *RedisLedgerRepo) Load(ctx context.Context, surfaceID string) (int, bool, error) {
	val, err := r.client.Get(ctx, r.key(surfaceID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("failed to load ledger: %w", err)
	}

	mistakes, err := strconv.Atoi(val)
	if err != nil || mistakes < 0 {
		logging.Warn("⚠️ Повреждённый счётчик %s: %q", surfaceID, val)
		return 0, false, fmt.Errorf("corrupt ledger value for %s: %q", surfaceID, val)
	}
	return mistakes, true, nil
}

// Delete удаляет счётчик
func (r *RedisLedgerRepo) Delete(ctx context.Context, surfaceID string) error {
	if err := r.client.Del(ctx, r.key(surfaceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisLedgerRepo) Close() error {
	return r.client.Close()
}
