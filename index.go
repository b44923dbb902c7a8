package transitlake

import (
	"fmt"
	"time"

	"github.com/transitlake/transitlake/storage"
)

// NominalIndex holds the timetable lookups the matcher works against.
// It is immutable once built; the server swaps in a fresh one when the
// operation day changes.
type NominalIndex struct {
	// Reference is the operation day the index was built for,
	// as YYYYMMDD.
	Reference string

	Stops  map[string]bool
	Routes map[string]bool
	Trips  map[string]bool

	// StartTimes maps route_id -> start_time -> trip_ids departing
	// the first stop at that time.
	StartTimes map[string]map[string][]string

	// TripStops maps trip_id -> stop_ids in stop_sequence order.
	TripStops map[string][]string
}

// BuildNominalIndex loads the index for the operation day of the given
// instant. Stop and route sets come from the full tables, trip lookups
// only from services active on the day.
func BuildNominalIndex(store storage.Store, day time.Time) (*NominalIndex, error) {
	idx := &NominalIndex{
		Reference:  day.Format("20060102"),
		Stops:      map[string]bool{},
		Routes:     map[string]bool{},
		Trips:      map[string]bool{},
		StartTimes: map[string]map[string][]string{},
		TripStops:  map[string][]string{},
	}

	stopIDs, err := store.StopIDs()
	if err != nil {
		return nil, fmt.Errorf("loading nominal stops: %w", err)
	}
	for _, id := range stopIDs {
		idx.Stops[id] = true
	}

	routeIDs, err := store.RouteIDs()
	if err != nil {
		return nil, fmt.Errorf("loading nominal routes: %w", err)
	}
	for _, id := range routeIDs {
		idx.Routes[id] = true
	}

	trips, err := store.OperationDayTrips(idx.Reference, true)
	if err != nil {
		return nil, fmt.Errorf("loading operation day trips: %w", err)
	}

	for _, t := range trips {
		idx.Trips[t.TripID] = true
		idx.TripStops[t.TripID] = append(idx.TripStops[t.TripID], t.StopID)

		if t.StopSequence == 1 {
			byStart := idx.StartTimes[t.RouteID]
			if byStart == nil {
				byStart = map[string][]string{}
				idx.StartTimes[t.RouteID] = byStart
			}
			byStart[t.DepartureTime] = append(byStart[t.DepartureTime], t.TripID)
		}
	}

	return idx, nil
}

// StartTimeTrips returns the candidate trips of a route departing at
// the given start time.
func (idx *NominalIndex) StartTimeTrips(routeID, startTime string) []string {
	byStart := idx.StartTimes[routeID]
	if byStart == nil {
		return nil
	}
	return byStart[startTime]
}
