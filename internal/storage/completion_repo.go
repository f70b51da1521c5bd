package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CompletionRecord итог одной сессии обработки
type CompletionRecord struct {
	SurfaceID         string    `json:"surface_id"`
	Pattern           string    `json:"pattern"`
	Mode              string    `json:"mode"`
	Destroyed         bool      `json:"destroyed"`
	Mistakes          int       `json:"mistakes"`
	Strikes           int       `json:"strikes"`
	QualityMultiplier float64   `json:"quality_multiplier"`
	FinishedAt        time.Time `json:"finished_at"`
}

// CompletionRepo хранит историю завершённых и разрушенных заготовок
type CompletionRepo interface {
	Record(ctx context.Context, rec CompletionRecord) error
	ListRecent(ctx context.Context, limit int) ([]CompletionRecord, error)
	Close() error
}

// MemoryCompletionRepo реализует CompletionRepo в памяти
type MemoryCompletionRepo struct {
	mu      sync.RWMutex
	records []CompletionRecord
}

// NewMemoryCompletionRepo создаёт историю в памяти
func NewMemoryCompletionRepo() *MemoryCompletionRepo {
	return &MemoryCompletionRepo{}
}

// Record добавляет запись в историю
func (r *MemoryCompletionRepo) Record(ctx context.Context, rec CompletionRecord) error {
	if rec.SurfaceID == "" {
		return fmt.Errorf("пустой идентификатор заготовки")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// ListRecent возвращает последние записи, новые первыми
func (r *MemoryCompletionRepo) ListRecent(ctx context.Context, limit int) ([]CompletionRecord, error) {
	r.mu.RLock()
	out := make([]CompletionRecord, len(r.records))
	copy(out, r.records)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close ничего не делает для хранилища в памяти
func (r *MemoryCompletionRepo) Close() error { return nil }
