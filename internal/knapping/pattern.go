package knapping

import (
	"sort"
	"strings"
	"sync"

	"github.com/annel0/knapping/internal/vec"
)

const (
	// LegacyMaskWidth ширина масок старого хранилища рецептов
	LegacyMaskWidth = 10

	// legacyOffset смещение, с которым маска 10x10 вписывается в поверхность 16x16
	legacyOffset = (GridSize - LegacyMaskWidth) / 2

	protectedRune = '#'
)

// Pattern описывает требуемую итоговую форму изделия.
// Маска только для чтения после разбора.
type Pattern struct {
	Name string
	mask Grid
}

// Protected сообщает, входит ли клетка в требуемую форму
func (p *Pattern) Protected(x, z int) bool {
	if p == nil {
		return false
	}
	return p.mask.Get(vec.Vec2{X: x, Y: z})
}

// Mask возвращает копию маски защиты
func (p *Pattern) Mask() Grid {
	if p == nil {
		return Grid{}
	}
	return p.mask
}

// ParseMask разбирает строку маски в квадрат width×width.
// Строки разделяются переводом строки или запятой, '#' означает защищённую клетку,
// любой другой символ - отход. Короткие строки дополняются отходом, длинные обрезаются,
// недостающие строки заполняются отходом. Результат индексируется [z][x].
func ParseMask(mask string, width int) [][]bool {
	if width <= 0 {
		return nil
	}

	rows := splitRows(mask)
	out := make([][]bool, width)
	for z := 0; z < width; z++ {
		out[z] = make([]bool, width)
		if z >= len(rows) {
			continue
		}
		row := []rune(strings.TrimRight(rows[z], "\r"))
		for x := 0; x < width && x < len(row); x++ {
			out[z][x] = row[x] == protectedRune
		}
	}
	return out
}

// splitRows режет маску по '\n' и ',' с сохранением пустых строк
func splitRows(mask string) []string {
	var rows []string
	start := 0
	for i, r := range mask {
		if r == '\n' || r == ',' {
			rows = append(rows, mask[start:i])
			start = i + 1
		}
	}
	return append(rows, mask[start:])
}

// LoadPattern разбирает маску шириной 16 без ошибок:
// некорректные строки дополняются или обрезаются.
func LoadPattern(name, mask string) *Pattern {
	p := &Pattern{Name: name}
	cells := ParseMask(mask, GridSize)
	for z := 0; z < GridSize; z++ {
		for x := 0; x < GridSize; x++ {
			p.mask[x][z] = cells[z][x]
		}
	}
	return p
}

// LoadLegacyPattern разбирает маску шириной 10 и вписывает её в центр поверхности
func LoadLegacyPattern(name, mask string) *Pattern {
	p := &Pattern{Name: name}
	cells := ParseMask(mask, LegacyMaskWidth)
	for z := 0; z < LegacyMaskWidth; z++ {
		for x := 0; x < LegacyMaskWidth; x++ {
			p.mask[x+legacyOffset][z+legacyOffset] = cells[z][x]
		}
	}
	return p
}

// PatternSource отдаёт шаблоны по имени. Реализуется хостом или PatternStore.
type PatternSource interface {
	Lookup(name string) (*Pattern, bool)
}

// PatternStore кеширует разобранные шаблоны
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewPatternStore создаёт пустое хранилище шаблонов
func NewPatternStore() *PatternStore {
	return &PatternStore{
		patterns: make(map[string]*Pattern),
	}
}

// Register разбирает и сохраняет шаблон шириной 16
func (ps *PatternStore) Register(name, mask string) *Pattern {
	return ps.put(LoadPattern(name, mask))
}

// RegisterLegacy разбирает и сохраняет шаблон старого формата шириной 10
func (ps *PatternStore) RegisterLegacy(name, mask string) *Pattern {
	return ps.put(LoadLegacyPattern(name, mask))
}

func (ps *PatternStore) put(p *Pattern) *Pattern {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.patterns[p.Name] = p
	return p
}

// Lookup возвращает шаблон, если он зарегистрирован
func (ps *PatternStore) Lookup(name string) (*Pattern, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.patterns[name]
	return p, ok
}

// Get возвращает шаблон или полностью незащищённый шаблон, если имя неизвестно
func (ps *PatternStore) Get(name string) *Pattern {
	if p, ok := ps.Lookup(name); ok {
		return p
	}
	return &Pattern{Name: name}
}

// Names возвращает отсортированный список имён шаблонов
func (ps *PatternStore) Names() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	names := make([]string, 0, len(ps.patterns))
	for name := range ps.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
