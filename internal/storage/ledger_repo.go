package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound возвращается, когда запись отсутствует в хранилище
var ErrNotFound = errors.New("запись не найдена")

// LedgerRepo определяет интерфейс резервного хранения счётчиков ошибок.
// Основной журнал живёт в памяти менеджера сессий; репозиторий позволяет
// восстановить счётчик после перезапуска сервиса.
type LedgerRepo interface {
	// Save сохраняет число ошибок заготовки.
	Save(ctx context.Context, surfaceID string, mistakes int) error

	// Load загружает число ошибок.
	// Возвращает false, если записи нет.
	Load(ctx context.Context, surfaceID string) (int, bool, error)

	// Delete удаляет запись (завершение или разрушение заготовки).
	Delete(ctx context.Context, surfaceID string) error

	// Close освобождает ресурсы.
	Close() error
}

// MemoryLedgerRepo реализует LedgerRepo в памяти.
// Используется как fallback, когда Redis недоступен, и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryLedgerRepo struct {
	mu   sync.RWMutex
	data map[string]int
}

// NewMemoryLedgerRepo создает новый репозиторий счётчиков в памяти
func NewMemoryLedgerRepo() *MemoryLedgerRepo {
	return &MemoryLedgerRepo{
		data: make(map[string]int),
	}
}

func validateLedgerEntry(surfaceID string, mistakes int) error {
	if surfaceID == "" {
		return fmt.Errorf("пустой идентификатор заготовки")
	}
	if mistakes < 0 {
		return fmt.Errorf("недействительное число ошибок: %d", mistakes)
	}
	return nil
}

// Save сохраняет счётчик в памяти
func (r *MemoryLedgerRepo) Save(ctx context.Context, surfaceID string, mistakes int) error {
	if err := validateLedgerEntry(surfaceID, mistakes); err != nil {
		return err
	}

	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[surfaceID] = mistakes
	return nil
}

// Load загружает счётчик из памяти
func (r *MemoryLedgerRepo) Load(ctx context.Context, surfaceID string) (int, bool, error) {
	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	mistakes, exists := r.data[surfaceID]
	return mistakes, exists, nil
}

// Delete удаляет счётчик. Отсутствующая запись не считается ошибкой.
func (r *MemoryLedgerRepo) Delete(ctx context.Context, surfaceID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, surfaceID)
	return nil
}

// Close ничего не делает для хранилища в памяти
func (r *MemoryLedgerRepo) Close() error { return nil }

// Count возвращает количество сохраненных счётчиков (для отладки).
func (r *MemoryLedgerRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
