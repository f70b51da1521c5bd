package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/annel0/knapping/internal/knapping"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// SurfaceSnapshot содержит состояние заготовки для восстановления сессии
type SurfaceSnapshot struct {
	ID        string                    `json:"id"`
	Pattern   string                    `json:"pattern"`
	Mode      string                    `json:"mode"`
	Occupancy [knapping.GridSize]uint16 `json:"occupancy"` // Строка z, бит x
	Mistakes  int                       `json:"mistakes"`
	Strikes   int                       `json:"strikes"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// SurfaceStorage хранит снимки заготовок в BadgerDB в сжатом zstd JSON
type SurfaceStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSurfaceStorage открывает хранилище снимков в каталоге dataPath/surfaces
func NewSurfaceStorage(dataPath string) (*SurfaceStorage, error) {
	dbPath := filepath.Join(dataPath, "surfaces")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd decoder: %w", err)
	}

	return &SurfaceStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Close закрывает хранилище данных
func (ss *SurfaceStorage) Close() error {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()

	if !ss.isReady {
		return nil
	}

	ss.isReady = false
	ss.decoder.Close()
	ss.encoder.Close()
	return ss.db.Close()
}

func surfaceKey(id string) []byte {
	return []byte("surface:" + id)
}

// SaveSnapshot сохраняет снимок заготовки
func (ss *SurfaceStorage) SaveSnapshot(snap SurfaceSnapshot) error {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()

	if !ss.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	if snap.ID == "" {
		return fmt.Errorf("пустой идентификатор заготовки")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}
	compressed := ss.encoder.EncodeAll(data, nil)

	err = ss.db.Update(func(txn *badger.Txn) error {
		return txn.Set(surfaceKey(snap.ID), compressed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadSnapshot загружает снимок заготовки. Возвращает ErrNotFound, если снимка нет.
func (ss *SurfaceStorage) LoadSnapshot(id string) (*SurfaceSnapshot, error) {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()

	if !ss.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var compressed []byte
	err := ss.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(surfaceKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			compressed = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := ss.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки снимка: %w", err)
	}

	var snap SurfaceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ошибка десериализации снимка: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot удаляет снимок заготовки
func (ss *SurfaceStorage) DeleteSnapshot(id string) error {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()

	if !ss.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := ss.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(surfaceKey(id))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return nil
}

// ListSnapshotIDs возвращает идентификаторы всех сохранённых заготовок
func (ss *SurfaceStorage) ListSnapshotIDs() ([]string, error) {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()

	if !ss.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	prefix := []byte("surface:")
	var ids []string
	err := ss.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}
	return ids, nil
}
