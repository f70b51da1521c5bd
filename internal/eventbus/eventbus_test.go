package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T, eventType string, priority int, payload any) *Envelope {
	t.Helper()
	ev, err := NewEnvelope("test", eventType, "surface-1", priority, payload)
	require.NoError(t, err)
	return ev
}

func TestNewEnvelopeAndDecode(t *testing.T) {
	ev := mustEnvelope(t, TypeKnappingCompleted, PriorityTerminal, KnappingCompletedEvent{
		SurfaceID:         "surface-1",
		Pattern:           "knife_blade",
		TotalMistakes:     1,
		QualityMultiplier: 1.05,
	})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, payloadVersion, ev.Version)
	assert.Equal(t, "surface-1", ev.CorrelationID)
	assert.False(t, ev.Timestamp.IsZero())

	var got KnappingCompletedEvent
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, "knife_blade", got.Pattern)
	assert.InDelta(t, 1.05, got.QualityMultiplier, 1e-9)

	other := mustEnvelope(t, TypeKnappingCompleted, PriorityTerminal, got)
	assert.NotEqual(t, ev.ID, other.ID)

	assert.Error(t, (&Envelope{}).Decode(&got))
}

func TestMemoryBusFilterDelivery(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(ctx, Filter{Types: []string{TypeKnappingDestroyed}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		got = append(got, ev.EventType)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeStrikeResolved, PriorityStrike, StrikeResolvedEvent{})))
	require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeKnappingDestroyed, PriorityTerminal, KnappingDestroyedEvent{})))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{TypeKnappingDestroyed}, got)
	mu.Unlock()

	stats := bus.Metrics()
	assert.Equal(t, uint64(2), stats.Published)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeStrikeResolved, PriorityStrike, StrikeResolvedEvent{})))
	assert.Eventually(t, func() bool { return bus.Metrics().InFlight == 0 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Zero(t, count)
	mu.Unlock()
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), mustEnvelope(t, TypeStrikeResolved, PriorityStrike, StrikeResolvedEvent{}))
	assert.ErrorIs(t, err, ErrBusClosed)

	_, err = bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestGlobalPublishWithoutBus(t *testing.T) {
	Init(nil)
	assert.Nil(t, Global())
	assert.NoError(t, Publish(context.Background(), &Envelope{EventType: TypeStrikeResolved}))
}

func TestMetricsExporterSync(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeStrikeResolved, PriorityStrike, StrikeResolvedEvent{})))
	}

	prev := me.sync(Stats{})
	assert.Equal(t, 3.0, gatherCounter(t, reg, "eventbus_messages_published_total"))

	require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeStrikeResolved, PriorityStrike, StrikeResolvedEvent{})))
	me.sync(prev)
	assert.Equal(t, 4.0, gatherCounter(t, reg, "eventbus_messages_published_total"))
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name && len(fam.GetMetric()) > 0 {
			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("метрика %s не найдена", name)
	return 0
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "knapping.*", Subject(""))
	assert.Equal(t, "knapping.StrikeResolved", Subject(TypeStrikeResolved))
	assert.Len(t, KnownTypes(), 3)
}
