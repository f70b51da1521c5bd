package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/annel0/knapping/internal/knapping"
	"gopkg.in/yaml.v3"
)

// PatternFile описание файла шаблонов.
// Маска - многострочная строка или строки через запятую.
type PatternFile struct {
	Patterns       map[string]string `yaml:"patterns"`        // ширина 16
	LegacyPatterns map[string]string `yaml:"legacy_patterns"` // ширина 10
}

// LoadPatterns читает файл шаблонов и регистрирует их в хранилище.
// Возвращает число зарегистрированных шаблонов.
func LoadPatterns(path string, store *knapping.PatternStore) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения шаблонов %s: %w", path, err)
	}
	return ParsePatterns(data, store)
}

// ParsePatterns разбирает YAML с шаблонами
func ParsePatterns(data []byte, store *knapping.PatternStore) (int, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("ошибка разбора шаблонов: %w", err)
	}

	count := 0
	for name, mask := range file.Patterns {
		store.Register(name, strings.TrimSuffix(mask, "\n"))
		count++
	}
	for name, mask := range file.LegacyPatterns {
		if _, exists := file.Patterns[name]; exists {
			return count, fmt.Errorf("шаблон %q объявлен в обоих форматах", name)
		}
		store.RegisterLegacy(name, strings.TrimSuffix(mask, "\n"))
		count++
	}
	return count, nil
}
