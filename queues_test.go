package transitlake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transitlake/transitlake/storage"
)

func TestQueueFIFO(t *testing.T) {
	q := Queue[int]{}

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestQueueConcurrentPush(t *testing.T) {
	q := Queue[int]{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}

func TestQueuesPending(t *testing.T) {
	q := NewQueues()
	assert.Zero(t, q.Pending())

	q.TripInserts.Push(&TripUpdateRows{Update: &storage.TripUpdate{ID: "A"}})
	q.TripDeletes.Push(&TripUpdateRows{Update: &storage.TripUpdate{ID: "B"}})
	q.AlertInserts.Push(&ServiceAlertRows{Alert: &storage.ServiceAlert{ID: "C"}})
	q.VehicleInserts.Push(&storage.VehiclePosition{ID: "D"})
	assert.Equal(t, 4, q.Pending())

	q.TripInserts.Pop()
	assert.Equal(t, 3, q.Pending())
}
