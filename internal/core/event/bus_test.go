package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ N int }

func TestEventsVisibleNextTick(t *testing.T) {
	b := NewBus()
	Emit(b, ping{1})
	assert.Empty(t, Read[ping](b), "not readable in the emitting tick")
	assert.Equal(t, 1, b.Pending())

	b.SwapBuffers()
	assert.Equal(t, []ping{{1}}, Read[ping](b))
	assert.Zero(t, b.Pending())

	b.SwapBuffers()
	assert.Empty(t, Read[ping](b))
}

func TestDispatchAllCallsHandlersInOrder(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(p ping) { got = append(got, p.N) })
	Subscribe(b, func(ev ActorEvent) { got = append(got, 100+int(ev.Kind)) })

	Emit(b, ping{1})
	Emit(b, ActorEvent{Kind: ActorHit})
	Emit(b, ping{2})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1, 2, 102}, got)
}

func TestConcurrentEmit(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Emit(b, ping{i*100 + j})
			}
		}(i)
	}
	wg.Wait()
	b.SwapBuffers()
	require.Len(t, Read[ping](b), 800)
}

func TestActorEventKindString(t *testing.T) {
	assert.Equal(t, "begin_overlap", ActorBeginOverlap.String())
	assert.Equal(t, "hit", ActorHit.String())
	assert.Equal(t, "unknown", ActorEventKind(9).String())
}
