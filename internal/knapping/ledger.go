package knapping

import (
	"errors"
	"sync"
)

// ErrNegativeCount возвращается при попытке записать отрицательный счётчик
var ErrNegativeCount = errors.New("счётчик ошибок не может быть отрицательным")

// Ledger хранит счётчики ошибок по идентификаторам заготовок.
// Принадлежит тому, кто управляет временем жизни сессий.
type Ledger struct {
	mu     sync.Mutex
	counts map[SurfaceID]int
}

// NewLedger создаёт пустой журнал ошибок
func NewLedger() *Ledger {
	return &Ledger{
		counts: make(map[SurfaceID]int),
	}
}

// GetCount возвращает текущее число ошибок
func (l *Ledger) GetCount(id SurfaceID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[id]
}

// SetCount устанавливает число ошибок
func (l *Ledger) SetCount(id SurfaceID, count int) error {
	if count < 0 {
		return ErrNegativeCount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[id] = count
	return nil
}

// Add увеличивает счётчик и возвращает новое значение. Неположительный прирост игнорируется.
func (l *Ledger) Add(id SurfaceID, count int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if count > 0 {
		l.counts[id] += count
	}
	return l.counts[id]
}

// Clear сбрасывает счётчик заготовки
func (l *Ledger) Clear(id SurfaceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, id)
}

// Len возвращает число отслеживаемых заготовок
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counts)
}
