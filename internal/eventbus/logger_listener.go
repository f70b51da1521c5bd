package eventbus

import (
	"context"

	"github.com/annel0/knapping/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Итоги сессий пишутся на уровне Info, удары на уровне Debug.
// Функция неблокирующая.
func StartLoggingListener(ctx context.Context, bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		switch ev.EventType {
		case TypeKnappingCompleted:
			var p KnappingCompletedEvent
			if err := ev.Decode(&p); err == nil {
				logging.Info("🏁 [EventBus] %s завершена: ошибок=%d качество=%.2f", p.SurfaceID, p.TotalMistakes, p.QualityMultiplier)
				return
			}
		case TypeKnappingDestroyed:
			var p KnappingDestroyedEvent
			if err := ev.Decode(&p); err == nil {
				logging.Info("💥 [EventBus] %s разрушена после %d ударов", p.SurfaceID, p.Strikes)
				return
			}
		}
		logging.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
