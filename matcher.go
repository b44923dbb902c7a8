package transitlake

import (
	"fmt"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// maxFeedAge is the header freshness cutoff. Messages older than this
// never reach the matcher.
const maxFeedAge = 7200 * time.Second

// Matcher reconciles decoded feed entities against the nominal index
// and turns them into store rows on the mutation queues. Entities are
// cloned before any rewrite so the decoded message stays untouched.
type Matcher struct {
	policy   MatchingConfig
	language string
	logger   *zap.Logger

	now func() time.Time
}

func NewMatcher(policy MatchingConfig, language string, logger *zap.Logger) *Matcher {
	return &Matcher{
		policy:   policy,
		language: language,
		logger:   logger,
		now:      time.Now,
	}
}

// decode unmarshals a feed message and applies the freshness filter.
func (m *Matcher) decode(payload []byte) (*gtfsrt.FeedMessage, error) {
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(payload, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling feed message: %w", err)
	}

	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		age := m.now().Unix() - int64(ts)
		if age > int64(maxFeedAge.Seconds()) {
			m.logger.Warn("discarding stale feed message",
				zap.Int64("age_seconds", age))
			return nil, nil
		}
	}

	return feed, nil
}

// ProcessTripUpdates reconciles a trip update message. Entities whose
// trip cannot be bound to a nominal trip are dropped.
func (m *Matcher) ProcessTripUpdates(idx *NominalIndex, mapping *Mapping, payload []byte, queues *Queues) error {
	feed, err := m.decode(payload)
	if err != nil || feed == nil {
		return err
	}

	for _, entity := range feed.GetEntity() {
		if entity.GetTripUpdate() == nil {
			continue
		}

		matched := proto.Clone(entity).(*gtfsrt.FeedEntity)
		update := matched.GetTripUpdate()
		trip := update.GetTrip()
		if trip == nil {
			m.logger.Debug("dropping trip update without trip descriptor",
				zap.String("entity_id", matched.GetId()))
			continue
		}

		if trip.RouteId != nil {
			trip.RouteId = proto.String(mapping.Route(trip.GetRouteId()))
		}
		for _, stu := range update.GetStopTimeUpdate() {
			if stu.StopId != nil {
				stu.StopId = proto.String(mapping.Stop(stu.GetStopId()))
			}
		}

		matchedTrip, stopMismatch := m.matchTripUpdate(idx, matched)
		if !matchedTrip {
			// A candidate rejected on its stops is worth surfacing;
			// a trip the timetable simply does not know is not.
			if stopMismatch {
				m.logger.Warn("dropping trip update after stop sequence mismatch",
					zap.String("entity_id", matched.GetId()),
					zap.String("route_id", trip.GetRouteId()),
					zap.String("start_time", trip.GetStartTime()))
			} else {
				m.logger.Debug("dropping unmatched trip update",
					zap.String("entity_id", matched.GetId()),
					zap.String("route_id", trip.GetRouteId()),
					zap.String("start_time", trip.GetStartTime()))
			}
			continue
		}

		rows := m.tripUpdateRows(matched)
		if matched.GetIsDeleted() {
			queues.TripDeletes.Push(rows)
		} else {
			queues.TripInserts.Push(rows)
		}
	}

	return nil
}

// matchTripUpdate binds the entity to a nominal trip. A trip_id known
// for the operation day stands as-is. Otherwise candidates sharing the
// route and start time are verified stop by stop; the first one that
// passes rebinds the entity and the trip descriptor. stopMismatch
// reports that at least one candidate was rejected on its stops.
func (m *Matcher) matchTripUpdate(idx *NominalIndex, entity *gtfsrt.FeedEntity) (matched, stopMismatch bool) {
	update := entity.GetTripUpdate()
	trip := update.GetTrip()

	if idx.Trips[trip.GetTripId()] {
		return true, false
	}

	startTime := trip.GetStartTime()
	if startTime == "" {
		return false, false
	}

	for _, candidate := range idx.StartTimeTrips(trip.GetRouteId(), startTime) {
		removals, ok := m.verifyStopSequence(idx.TripStops[candidate], update)
		if !ok {
			stopMismatch = true
			continue
		}

		entity.Id = proto.String(candidate)
		trip.TripId = proto.String(candidate)
		for i := len(removals) - 1; i >= 0; i-- {
			r := removals[i]
			update.StopTimeUpdate = append(update.StopTimeUpdate[:r], update.StopTimeUpdate[r+1:]...)
		}
		return true, stopMismatch
	}

	return false, stopMismatch
}

// verifyStopSequence checks the entity's stop time updates against the
// candidate's nominal stops. Returned indices are updates to remove
// from an accepted candidate; ok=false rejects the candidate outright.
func (m *Matcher) verifyStopSequence(nominalStops []string, update *gtfsrt.TripUpdate) ([]int, bool) {
	p := m.policy
	if !p.MatchAgainstFirstStopID && !p.MatchAgainstStopIDs && !p.RemoveInvalidStopIDs {
		return nil, true
	}

	firstOnly := p.MatchAgainstFirstStopID && !p.MatchAgainstStopIDs && !p.RemoveInvalidStopIDs

	removals := []int{}
	for i, stu := range update.GetStopTimeUpdate() {
		seq := int(stu.GetStopSequence())
		if firstOnly && seq != 1 {
			continue
		}

		// A sequence beyond the nominal run can never belong to
		// this candidate.
		if len(nominalStops) == 0 || seq > len(nominalStops) {
			return nil, false
		}

		nominalIdx := seq - 1
		if nominalIdx < 0 {
			nominalIdx = 0
		}
		if nominalStops[nominalIdx] == stu.GetStopId() {
			continue
		}

		if p.MatchAgainstStopIDs {
			return nil, false
		}
		if p.RemoveInvalidStopIDs {
			removals = append(removals, i)
			continue
		}
		return nil, false
	}

	return removals, true
}

// ProcessServiceAlerts reconciles an alert message. Informed entities
// are remapped and filtered to nominal references; alerts left with no
// informed entity are dropped.
func (m *Matcher) ProcessServiceAlerts(idx *NominalIndex, mapping *Mapping, payload []byte, queues *Queues) error {
	feed, err := m.decode(payload)
	if err != nil || feed == nil {
		return err
	}

	for _, entity := range feed.GetEntity() {
		if entity.GetAlert() == nil {
			continue
		}

		matched := proto.Clone(entity).(*gtfsrt.FeedEntity)
		alert := matched.GetAlert()

		// Deletions go straight to the delete queue: their references
		// may no longer resolve against the current timetable.
		if matched.GetIsDeleted() {
			queues.AlertDeletes.Push(m.serviceAlertRows(matched))
			continue
		}

		kept := alert.GetInformedEntity()[:0]
		for _, ie := range alert.GetInformedEntity() {
			if ie.RouteId != nil {
				ie.RouteId = proto.String(mapping.Route(ie.GetRouteId()))
				if !idx.Routes[ie.GetRouteId()] {
					ie.RouteId = nil
				}
			}
			if ie.StopId != nil {
				ie.StopId = proto.String(mapping.Stop(ie.GetStopId()))
				if !idx.Stops[ie.GetStopId()] {
					ie.StopId = nil
				}
			}
			if trip := ie.GetTrip(); trip != nil && trip.RouteId != nil {
				trip.RouteId = proto.String(mapping.Route(trip.GetRouteId()))
			}

			if ie.AgencyId == nil && ie.RouteId == nil && ie.RouteType == nil &&
				ie.StopId == nil && ie.GetTrip() == nil {
				continue
			}
			kept = append(kept, ie)
		}
		alert.InformedEntity = kept

		if len(alert.InformedEntity) == 0 {
			m.logger.Warn("dropping alert without nominal references",
				zap.String("entity_id", matched.GetId()))
			continue
		}

		queues.AlertInserts.Push(m.serviceAlertRows(matched))
	}

	return nil
}

// ProcessVehiclePositions ingests a vehicle position message. IDs are
// remapped, but positions are not matched against the timetable.
func (m *Matcher) ProcessVehiclePositions(idx *NominalIndex, mapping *Mapping, payload []byte, queues *Queues) error {
	feed, err := m.decode(payload)
	if err != nil || feed == nil {
		return err
	}

	for _, entity := range feed.GetEntity() {
		if entity.GetVehicle() == nil {
			continue
		}

		matched := proto.Clone(entity).(*gtfsrt.FeedEntity)
		position := matched.GetVehicle()

		if trip := position.GetTrip(); trip != nil && trip.RouteId != nil {
			trip.RouteId = proto.String(mapping.Route(trip.GetRouteId()))
		}
		if position.StopId != nil {
			position.StopId = proto.String(mapping.Stop(position.GetStopId()))
		}

		row := m.vehiclePositionRow(matched)
		if matched.GetIsDeleted() {
			queues.VehicleDeletes.Push(row)
		} else {
			queues.VehicleInserts.Push(row)
		}
	}

	return nil
}
