package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, knapping
	Username string // пользователь БД
	Password string // пароль БД
}

// MariaCompletionRepo реализует CompletionRepo для MariaDB
type MariaCompletionRepo struct {
	db *sql.DB
}

// NewMariaCompletionRepo создает подключение к MariaDB и таблицу истории
func NewMariaCompletionRepo(cfg MariaConfig) (*MariaCompletionRepo, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.Database == "" {
		cfg.Database = "knapping"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	repo := &MariaCompletionRepo{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}
	return repo, nil
}

// createTables создает таблицу истории, если её нет
func (m *MariaCompletionRepo) createTables() error {
	createTable := `
	CREATE TABLE IF NOT EXISTS knapping_completions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		surface_id VARCHAR(64) NOT NULL,
		pattern VARCHAR(64) NOT NULL,
		mode VARCHAR(16) NOT NULL,
		destroyed BOOLEAN NOT NULL DEFAULT FALSE,
		mistakes INT NOT NULL,
		strikes INT NOT NULL,
		quality DOUBLE NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		INDEX idx_finished_at (finished_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`

	if _, err := m.db.Exec(createTable); err != nil {
		return fmt.Errorf("не удалось создать таблицу knapping_completions: %w", err)
	}
	return nil
}

// Record добавляет запись в историю
func (m *MariaCompletionRepo) Record(ctx context.Context, rec CompletionRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}

	query := `INSERT INTO knapping_completions
		(surface_id, pattern, mode, destroyed, mistakes, strikes, quality, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := m.db.ExecContext(ctx, query,
		rec.SurfaceID, rec.Pattern, rec.Mode, rec.Destroyed,
		rec.Mistakes, rec.Strikes, rec.QualityMultiplier, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи истории: %w", err)
	}
	return nil
}

// ListRecent возвращает последние записи, новые первыми
func (m *MariaCompletionRepo) ListRecent(ctx context.Context, limit int) ([]CompletionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT surface_id, pattern, mode, destroyed, mistakes, strikes, quality, finished_at
			  FROM knapping_completions ORDER BY finished_at DESC LIMIT ?`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории: %w", err)
	}
	defer rows.Close()

	var records []CompletionRecord
	for rows.Next() {
		var rec CompletionRecord
		if err := rows.Scan(
			&rec.SurfaceID,
			&rec.Pattern,
			&rec.Mode,
			&rec.Destroyed,
			&rec.Mistakes,
			&rec.Strikes,
			&rec.QualityMultiplier,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования истории: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close закрывает подключение к БД
func (m *MariaCompletionRepo) Close() error {
	return m.db.Close()
}
