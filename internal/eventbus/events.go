package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed возвращается при работе с закрытой шиной.
var ErrBusClosed = errors.New("eventbus: шина закрыта")

// Типы событий обработки камня.
const (
	TypeStrikeResolved    = "StrikeResolved"
	TypeKnappingCompleted = "KnappingCompleted"
	TypeKnappingDestroyed = "KnappingDestroyed"
)

// KnownTypes возвращает все публикуемые типы событий.
func KnownTypes() []string {
	return []string{TypeStrikeResolved, TypeKnappingCompleted, TypeKnappingDestroyed}
}

// Приоритеты. Удары при переполнении буфера можно потерять, итоги сессий нет.
const (
	PriorityStrike   = 3
	PriorityTerminal = 7
)

const payloadVersion = 1

// Cell координата клетки в событии.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// StrikeResolvedEvent публикуется после каждого удара.
type StrikeResolvedEvent struct {
	SurfaceID     string `json:"surface_id"`
	Pattern       string `json:"pattern"`
	Mode          string `json:"mode"`
	X             int    `json:"x"`
	Z             int    `json:"z"`
	Kind          string `json:"kind"`
	Removed       []Cell `json:"removed,omitempty"`
	Debris        int    `json:"debris"`
	Mistakes      int    `json:"mistakes"`
	TotalMistakes int    `json:"total_mistakes"`
}

// KnappingCompletedEvent публикуется при успешном завершении заготовки.
type KnappingCompletedEvent struct {
	SurfaceID         string  `json:"surface_id"`
	Pattern           string  `json:"pattern"`
	TotalMistakes     int     `json:"total_mistakes"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	Strikes           int     `json:"strikes"`
}

// KnappingDestroyedEvent публикуется при разрушении заготовки.
type KnappingDestroyedEvent struct {
	SurfaceID     string `json:"surface_id"`
	Pattern       string `json:"pattern"`
	TotalMistakes int    `json:"total_mistakes"`
	Strikes       int    `json:"strikes"`
}

// NewEnvelope упаковывает полезную нагрузку в конверт с новым UUID.
func NewEnvelope(source, eventType, correlationID string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: сериализация %s: %w", eventType, err)
	}
	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        source,
		EventType:     eventType,
		Version:       payloadVersion,
		CorrelationID: correlationID,
		Priority:      priority,
		Payload:       data,
	}, nil
}

// Decode распаковывает полезную нагрузку конверта.
func (ev *Envelope) Decode(dst any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("eventbus: пустая полезная нагрузка %s", ev.EventType)
	}
	return json.Unmarshal(ev.Payload, dst)
}
