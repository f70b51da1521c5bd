package knapping

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCounts(t *testing.T) {
	l := NewLedger()
	id := SurfaceID("stone-1")

	assert.Equal(t, 0, l.GetCount(id), "новая заготовка начинается с нуля")
	assert.Equal(t, 2, l.Add(id, 2))
	assert.Equal(t, 2, l.Add(id, -5), "отрицательный прирост игнорируется")

	require.NoError(t, l.SetCount(id, 7))
	assert.Equal(t, 7, l.GetCount(id))

	err := l.SetCount(id, -1)
	assert.ErrorIs(t, err, ErrNegativeCount)
	assert.Equal(t, 7, l.GetCount(id))

	l.Clear(id)
	assert.Equal(t, 0, l.GetCount(id))
	assert.Equal(t, 0, l.Len())
}

func TestLedgerSessionsIndependent(t *testing.T) {
	l := NewLedger()
	l.Add("a", 1)
	l.Add("b", 3)
	l.Clear("a")

	assert.Equal(t, 0, l.GetCount("a"))
	assert.Equal(t, 3, l.GetCount("b"))
}

func TestLedgerConcurrentSessions(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id SurfaceID) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Add(id, 1)
			}
		}(SurfaceID(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 8, l.Len())
	assert.Equal(t, 100, l.GetCount("c"))
}
