package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/knapping/internal/eventbus"
	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/logging"
	"github.com/annel0/knapping/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrSessionNotFound сессия с таким идентификатором не существует
	ErrSessionNotFound = errors.New("сессия не найдена")
	// ErrSessionClosed заготовка уже завершена или разрушена
	ErrSessionClosed = errors.New("сессия закрыта")
	// ErrUnknownPattern шаблон не зарегистрирован
	ErrUnknownPattern = errors.New("неизвестный шаблон")
)

const tracerName = "github.com/annel0/knapping/internal/session"

// SnapshotStore сохраняет состояние заготовок между перезапусками
type SnapshotStore interface {
	SaveSnapshot(snap storage.SurfaceSnapshot) error
	LoadSnapshot(id string) (*storage.SurfaceSnapshot, error)
	DeleteSnapshot(id string) error
}

// Options настройки менеджера сессий. Все коллабораторы, кроме Patterns, необязательны.
type Options struct {
	Config knapping.Config
	Mode   knapping.Mode // Режим по умолчанию
	Seed   int64         // 0 - сид от текущего времени
	Source string        // Имя источника событий

	// StrictPatterns запрещает старт с незарегистрированным шаблоном.
	// Без него неизвестный шаблон даёт заготовку без защиты.
	StrictPatterns bool

	Patterns    knapping.PatternSource
	LedgerRepo  storage.LedgerRepo
	Snapshots   SnapshotStore
	Completions storage.CompletionRepo
	Bus         eventbus.EventBus // nil - глобальная шина
	Metrics     *Metrics
}

// Info снимок состояния сессии для внешнего API
type Info struct {
	ID               string    `json:"id"`
	Pattern          string    `json:"pattern"`
	Mode             string    `json:"mode"`
	Rows             []string  `json:"rows"`
	Mistakes         int       `json:"mistakes"`
	Strikes          int       `json:"strikes"`
	WasteRemaining   int       `json:"waste_remaining"`
	MissingProtected int       `json:"missing_protected"`
	Completable      bool      `json:"completable"`
	Destroyed        bool      `json:"destroyed"`
	Completed        bool      `json:"completed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// session одна заготовка со своим резолвером.
// Удары по одной заготовке сериализуются mu.
type session struct {
	mu        sync.Mutex
	surface   *knapping.Surface
	resolver  *knapping.Resolver
	mode      knapping.Mode
	strikes   int
	final     int // Ошибки на момент завершения, журнал к этому времени очищен
	createdAt time.Time
	updatedAt time.Time
}

// Manager управляет сессиями обработки камня
type Manager struct {
	opts   Options
	ledger *knapping.Ledger
	tracer trace.Tracer

	mu       sync.RWMutex
	sessions map[knapping.SurfaceID]*session
	started  int64
}

// NewManager создаёт менеджер сессий
func NewManager(opts Options) (*Manager, error) {
	if opts.Patterns == nil {
		return nil, fmt.Errorf("не задан источник шаблонов")
	}
	if opts.Source == "" {
		opts.Source = "knapd"
	}
	opts.Config = opts.Config.Normalize()

	return &Manager{
		opts:     opts,
		ledger:   knapping.NewLedger(),
		tracer:   otel.Tracer(tracerName),
		sessions: make(map[knapping.SurfaceID]*session),
	}, nil
}

// Ledger возвращает общий журнал ошибок
func (m *Manager) Ledger() *knapping.Ledger {
	return m.ledger
}

// Config возвращает нормализованную конфигурацию обработки
func (m *Manager) Config() knapping.Config {
	return m.opts.Config
}

// DefaultMode возвращает режим по умолчанию
func (m *Manager) DefaultMode() knapping.Mode {
	return m.opts.Mode
}

func (m *Manager) newResolver() *knapping.Resolver {
	n := atomic.AddInt64(&m.started, 1)
	seed := m.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return knapping.NewResolver(m.opts.Config, rand.New(rand.NewSource(seed+n)))
}

func (m *Manager) pattern(name string) (*knapping.Pattern, error) {
	if p, ok := m.opts.Patterns.Lookup(name); ok {
		return p, nil
	}
	if m.opts.StrictPatterns {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
	}
	logging.Warn("⚠️ Шаблон %q не найден, заготовка без защиты", name)
	return knapping.LoadPattern(name, ""), nil
}

// Start создаёт новую заготовку под шаблон
func (m *Manager) Start(ctx context.Context, patternName string, mode knapping.Mode) (Info, error) {
	ctx, span := m.tracer.Start(ctx, "session.Start", trace.WithAttributes(
		attribute.String("knapping.pattern", patternName),
		attribute.String("knapping.mode", mode.String()),
	))
	defer span.End()

	pattern, err := m.pattern(patternName)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Info{}, err
	}

	id := knapping.SurfaceID(uuid.NewString())
	now := time.Now().UTC()
	s := &session{
		surface:   knapping.NewSurface(id, pattern),
		resolver:  m.newResolver(),
		mode:      mode,
		createdAt: now,
		updatedAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Inc()
	}
	span.SetAttributes(attribute.String("knapping.surface_id", string(id)))

	s.mu.Lock()
	defer s.mu.Unlock()
	m.saveSnapshot(s)
	logging.Info("🪨 Новая заготовка %s (шаблон %s, режим %s)", id, patternName, mode)
	return m.info(s), nil
}

func (m *Manager) lookup(id knapping.SurfaceID) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// ResolveStrike разрешает удар по клетке (x, z) заготовки id
func (m *Manager) ResolveStrike(ctx context.Context, id knapping.SurfaceID, x, z int) (knapping.StrikeOutcome, Info, error) {
	ctx, span := m.tracer.Start(ctx, "session.ResolveStrike", trace.WithAttributes(
		attribute.String("knapping.surface_id", string(id)),
		attribute.Int("knapping.x", x),
		attribute.Int("knapping.z", z),
	))
	defer span.End()

	s, err := m.lookup(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return knapping.StrikeOutcome{}, Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface.Terminal() {
		err := fmt.Errorf("%w: %s", ErrSessionClosed, id)
		span.SetStatus(codes.Error, err.Error())
		return knapping.StrikeOutcome{Kind: knapping.StrikeInvalid, TotalMistakes: s.final}, m.info(s), err
	}

	out := s.resolver.ResolveStrike(id, s.surface, m.ledger, x, z, s.mode)
	if out.Kind == knapping.StrikeInvalid {
		return out, m.info(s), nil
	}
	m.recordStrike(s, out)
	s.strikes++
	s.updatedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.String("knapping.kind", out.Kind.String()),
		attribute.Int("knapping.removed", len(out.Removed)),
		attribute.Int("knapping.debris", out.Debris),
		attribute.Int("knapping.total_mistakes", out.TotalMistakes),
	)
	logging.LogStrike(string(id), x, z, out.Kind.String(), len(out.Removed), out.Mistakes, out.TotalMistakes)

	m.publish(ctx, eventbus.TypeStrikeResolved, id, eventbus.PriorityStrike, m.strikeEvent(s, x, z, out))

	if out.Destroyed {
		m.finish(ctx, s, out.TotalMistakes, 0)
		logging.Warn("💥 Заготовка %s разрушена (%d ошибок)", id, out.TotalMistakes)
	} else {
		m.persist(ctx, s)
	}

	return out, m.info(s), nil
}

// CheckCompletion проверяет завершение заготовки и рассчитывает качество
func (m *Manager) CheckCompletion(ctx context.Context, id knapping.SurfaceID) (knapping.CompletionOutcome, Info, error) {
	ctx, span := m.tracer.Start(ctx, "session.CheckCompletion", trace.WithAttributes(
		attribute.String("knapping.surface_id", string(id)),
	))
	defer span.End()

	s, err := m.lookup(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return knapping.CompletionOutcome{}, Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface.Terminal() {
		err := fmt.Errorf("%w: %s", ErrSessionClosed, id)
		span.SetStatus(codes.Error, err.Error())
		return knapping.CompletionOutcome{TotalMistakes: s.final}, m.info(s), err
	}

	out := s.resolver.CheckCompletion(id, s.surface, m.ledger)
	span.SetAttributes(attribute.Bool("knapping.complete", out.Complete))
	if !out.Complete {
		return out, m.info(s), nil
	}

	s.updatedAt = time.Now().UTC()
	span.SetAttributes(attribute.Float64("knapping.quality", out.QualityMultiplier))
	m.finish(ctx, s, out.TotalMistakes, out.QualityMultiplier)
	m.publish(ctx, eventbus.TypeKnappingCompleted, id, eventbus.PriorityTerminal, eventbus.KnappingCompletedEvent{
		SurfaceID:         string(id),
		Pattern:           s.surface.Pattern,
		TotalMistakes:     out.TotalMistakes,
		QualityMultiplier: out.QualityMultiplier,
		Strikes:           s.strikes,
	})
	logging.Info("🏁 Заготовка %s завершена: ошибок %d, качество x%.2f", id, out.TotalMistakes, out.QualityMultiplier)

	return out, m.info(s), nil
}

// Abandon удаляет сессию вместе с журналом и снимком
func (m *Manager) Abandon(ctx context.Context, id knapping.SurfaceID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.surface.Terminal() && m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Dec()
	}
	m.ledger.Clear(id)
	m.forget(ctx, id)
	logging.Info("🗑️ Сессия %s удалена", id)
	return nil
}

// Get возвращает состояние сессии
func (m *Manager) Get(id knapping.SurfaceID) (Info, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.info(s), nil
}

// List возвращает все сессии, упорядоченные по времени создания
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		infos = append(infos, m.info(s))
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Restore поднимает сессию из снимка. Счётчик ошибок берётся из LedgerRepo,
// а при его отсутствии из снимка.
func (m *Manager) Restore(ctx context.Context, id knapping.SurfaceID) (Info, error) {
	ctx, span := m.tracer.Start(ctx, "session.Restore", trace.WithAttributes(
		attribute.String("knapping.surface_id", string(id)),
	))
	defer span.End()

	if info, err := m.Get(id); err == nil {
		return info, nil
	}
	if m.opts.Snapshots == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	snap, err := m.opts.Snapshots.LoadSnapshot(string(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Info{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Info{}, fmt.Errorf("ошибка загрузки снимка %s: %w", id, err)
	}

	pattern, err := m.pattern(snap.Pattern)
	if err != nil {
		return Info{}, err
	}
	mode, err := knapping.ParseMode(snap.Mode)
	if err != nil {
		mode = m.opts.Mode
	}

	mistakes := snap.Mistakes
	if m.opts.LedgerRepo != nil {
		if count, found, err := m.opts.LedgerRepo.Load(ctx, string(id)); err != nil {
			logging.Warn("⚠️ Не удалось загрузить журнал %s: %v", id, err)
		} else if found {
			mistakes = count
		}
	}
	if err := m.ledger.SetCount(id, mistakes); err != nil {
		return Info{}, err
	}

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = snap.UpdatedAt
	}
	s := &session{
		surface:   knapping.RestoreSurface(id, pattern, knapping.UnpackGrid(snap.Occupancy)),
		resolver:  m.newResolver(),
		mode:      mode,
		strikes:   snap.Strikes,
		createdAt: createdAt,
		updatedAt: snap.UpdatedAt,
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return m.info(existing), nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Inc()
	}
	logging.Info("♻️ Заготовка %s восстановлена (%d ошибок)", id, mistakes)

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.info(s), nil
}

// info собирает Info. Вызывается под s.mu.
func (m *Manager) info(s *session) Info {
	id := s.surface.ID
	mistakes := m.ledger.GetCount(id)
	if s.surface.Terminal() {
		mistakes = s.final
	}
	return Info{
		ID:               string(id),
		Pattern:          s.surface.Pattern,
		Mode:             s.mode.String(),
		Rows:             s.surface.Occupancy.Rows('#', '.'),
		Mistakes:         mistakes,
		Strikes:          s.strikes,
		WasteRemaining:   s.surface.WasteRemaining(),
		MissingProtected: s.surface.MissingProtected(),
		Completable:      !s.surface.Terminal() && s.surface.WasteCleared(),
		Destroyed:        s.surface.Destroyed(),
		Completed:        s.surface.Completed(),
		CreatedAt:        s.createdAt,
		UpdatedAt:        s.updatedAt,
	}
}
