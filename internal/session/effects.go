package session

import (
	"context"
	"time"

	"github.com/annel0/knapping/internal/eventbus"
	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/logging"
	"github.com/annel0/knapping/internal/storage"
)

// Побочные эффекты ударов. Ошибки коллабораторов логируются и не
// прерывают разрешение удара: состояние в памяти остаётся источником истины.

func (m *Manager) recordStrike(s *session, out knapping.StrikeOutcome) {
	metrics := m.opts.Metrics
	if metrics == nil {
		return
	}
	metrics.Strikes.WithLabelValues(out.Kind.String(), s.mode.String()).Inc()
	if out.Mistakes > 0 {
		metrics.Mistakes.Add(float64(out.Mistakes))
	}
	if out.Debris > 0 {
		metrics.Debris.Add(float64(out.Debris))
	}
}

func (m *Manager) strikeEvent(s *session, x, z int, out knapping.StrikeOutcome) eventbus.StrikeResolvedEvent {
	cells := make([]eventbus.Cell, 0, len(out.Removed))
	for _, c := range out.Removed {
		cells = append(cells, eventbus.Cell{X: c.X, Z: c.Y})
	}
	return eventbus.StrikeResolvedEvent{
		SurfaceID:     string(s.surface.ID),
		Pattern:       s.surface.Pattern,
		Mode:          s.mode.String(),
		X:             x,
		Z:             z,
		Kind:          out.Kind.String(),
		Removed:       cells,
		Debris:        out.Debris,
		Mistakes:      out.Mistakes,
		TotalMistakes: out.TotalMistakes,
	}
}

func (m *Manager) publish(ctx context.Context, eventType string, id knapping.SurfaceID, priority int, payload any) {
	ev, err := eventbus.NewEnvelope(m.opts.Source, eventType, string(id), priority, payload)
	if err != nil {
		logging.Error("❌ Не удалось собрать событие %s: %v", eventType, err)
		return
	}

	if m.opts.Bus != nil {
		err = m.opts.Bus.Publish(ctx, ev)
	} else {
		err = eventbus.Publish(ctx, ev)
	}
	if err != nil {
		logging.Warn("⚠️ Событие %s для %s не опубликовано: %v", eventType, id, err)
	}
}

// persist сохраняет журнал и снимок живой заготовки
func (m *Manager) persist(ctx context.Context, s *session) {
	id := s.surface.ID
	if repo := m.opts.LedgerRepo; repo != nil {
		var err error
		if count := m.ledger.GetCount(id); count > 0 {
			err = repo.Save(ctx, string(id), count)
		} else {
			err = repo.Delete(ctx, string(id))
		}
		if err != nil {
			logging.Warn("⚠️ Не удалось сохранить журнал %s: %v", id, err)
		}
	}
	m.saveSnapshot(s)
}

func (m *Manager) saveSnapshot(s *session) {
	if m.opts.Snapshots == nil {
		return
	}
	id := s.surface.ID
	snap := storage.SurfaceSnapshot{
		ID:        string(id),
		Pattern:   s.surface.Pattern,
		Mode:      s.mode.String(),
		Occupancy: s.surface.Occupancy.Pack(),
		Mistakes:  m.ledger.GetCount(id),
		Strikes:   s.strikes,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if err := m.opts.Snapshots.SaveSnapshot(snap); err != nil {
		logging.Warn("⚠️ Не удалось сохранить снимок %s: %v", id, err)
	}
}

// forget удаляет журнал и снимок заготовки из хранилищ
func (m *Manager) forget(ctx context.Context, id knapping.SurfaceID) {
	if repo := m.opts.LedgerRepo; repo != nil {
		if err := repo.Delete(ctx, string(id)); err != nil {
			logging.Warn("⚠️ Не удалось удалить журнал %s: %v", id, err)
		}
	}
	if m.opts.Snapshots != nil {
		if err := m.opts.Snapshots.DeleteSnapshot(string(id)); err != nil {
			logging.Warn("⚠️ Не удалось удалить снимок %s: %v", id, err)
		}
	}
}

// finish переводит заготовку в конечное состояние во внешних хранилищах.
// quality == 0 означает разрушение.
func (m *Manager) finish(ctx context.Context, s *session, mistakes int, quality float64) {
	id := s.surface.ID
	s.final = mistakes
	destroyed := s.surface.Destroyed()

	m.forget(ctx, id)

	if metrics := m.opts.Metrics; metrics != nil {
		metrics.ActiveSessions.Dec()
		if destroyed {
			metrics.Finished.WithLabelValues("destroyed").Inc()
		} else {
			metrics.Finished.WithLabelValues("completed").Inc()
			metrics.Quality.Observe(quality)
		}
	}

	if destroyed {
		m.publish(ctx, eventbus.TypeKnappingDestroyed, id, eventbus.PriorityTerminal, eventbus.KnappingDestroyedEvent{
			SurfaceID:     string(id),
			Pattern:       s.surface.Pattern,
			TotalMistakes: mistakes,
			Strikes:       s.strikes,
		})
	}

	if m.opts.Completions != nil {
		rec := storage.CompletionRecord{
			SurfaceID:         string(id),
			Pattern:           s.surface.Pattern,
			Mode:              s.mode.String(),
			Destroyed:         destroyed,
			Mistakes:          mistakes,
			Strikes:           s.strikes,
			QualityMultiplier: quality,
			FinishedAt:        time.Now().UTC(),
		}
		if err := m.opts.Completions.Record(ctx, rec); err != nil {
			logging.Warn("⚠️ Не удалось записать историю %s: %v", id, err)
		}
	}
}
