package transitlake

import (
	"sync"

	"github.com/transitlake/transitlake/storage"
)

// TripUpdateRows is a reconciled trip update with its stop time rows.
type TripUpdateRows struct {
	Update          *storage.TripUpdate
	StopTimeUpdates []*storage.StopTimeUpdate
}

// ServiceAlertRows is a reconciled alert with its repeated children.
type ServiceAlertRows struct {
	Alert            *storage.ServiceAlert
	ActivePeriods    []*storage.AlertActivePeriod
	InformedEntities []*storage.AlertInformedEntity
}

// Queue is an unbounded FIFO shared between MQTT message handlers and
// the flush loop. Push never blocks.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Pop removes and returns the oldest item. ok is false on empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Queues holds the six mutation queues between intake and flush.
type Queues struct {
	AlertInserts   Queue[*ServiceAlertRows]
	AlertDeletes   Queue[*ServiceAlertRows]
	TripInserts    Queue[*TripUpdateRows]
	TripDeletes    Queue[*TripUpdateRows]
	VehicleInserts Queue[*storage.VehiclePosition]
	VehicleDeletes Queue[*storage.VehiclePosition]
}

func NewQueues() *Queues {
	return &Queues{}
}

// Pending reports the total number of queued mutations.
func (q *Queues) Pending() int {
	return q.AlertInserts.Len() + q.AlertDeletes.Len() +
		q.TripInserts.Len() + q.TripDeletes.Len() +
		q.VehicleInserts.Len() + q.VehicleDeletes.Len()
}
