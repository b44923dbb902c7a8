package transitlake

import (
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/proto"
)

var matcherNow = time.Date(2025, 1, 6, 8, 30, 0, 0, time.UTC)

func newTestMatcher(policy MatchingConfig) *Matcher {
	m := NewMatcher(policy, "de-DE", zap.NewNop())
	m.now = func() time.Time { return matcherNow }
	return m
}

// fixtureIndex mirrors the timetable of testutil.LoadFixture without a
// database round trip.
func fixtureIndex() *NominalIndex {
	return &NominalIndex{
		Reference: "20250106",
		Stops:     map[string]bool{"STOP_A": true, "STOP_B": true, "STOP_C": true, "STOP_D": true},
		Routes:    map[string]bool{"R1": true, "R9": true},
		Trips:     map[string]bool{"TRIP_1": true, "TRIP_2": true, "TRIP_3": true},
		StartTimes: map[string]map[string][]string{
			"R1": {"08:00:00": {"TRIP_1"}, "09:00:00": {"TRIP_2"}},
			"R9": {"08:00:00": {"TRIP_3"}},
		},
		TripStops: map[string][]string{
			"TRIP_1": {"STOP_A", "STOP_B", "STOP_C"},
			"TRIP_2": {"STOP_A", "STOP_C"},
			"TRIP_3": {"STOP_D"},
		},
	}
}

func marshalTestFeed(t *testing.T, headerTime time.Time, entities ...*gtfsrt.FeedEntity) []byte {
	t.Helper()
	payload, err := proto.Marshal(&gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(headerTime.Unix())),
		},
		Entity: entities,
	})
	require.NoError(t, err)
	return payload
}

func stu(seq uint32, stopID string) *gtfsrt.TripUpdate_StopTimeUpdate {
	return &gtfsrt.TripUpdate_StopTimeUpdate{
		StopSequence: proto.Uint32(seq),
		StopId:       proto.String(stopID),
		Departure:    &gtfsrt.TripUpdate_StopTimeEvent{Delay: proto.Int32(60)},
	}
}

func tripUpdateEntity(id string, trip *gtfsrt.TripDescriptor, stus ...*gtfsrt.TripUpdate_StopTimeUpdate) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip:           trip,
			StopTimeUpdate: stus,
		},
	}
}

func TestVerifyStopSequence(t *testing.T) {
	nominal := []string{"STOP_A", "STOP_B", "STOP_C"}

	for _, tc := range []struct {
		name         string
		policy       MatchingConfig
		nominal      []string
		stus         []*gtfsrt.TripUpdate_StopTimeUpdate
		wantOK       bool
		wantRemovals []int
	}{
		{
			name:    "no verification accepts anything",
			policy:  MatchingConfig{},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_X")},
			wantOK:  true,
		},
		{
			name:    "first stop only accepts on first match",
			policy:  MatchingConfig{MatchAgainstFirstStopID: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A"), stu(2, "STOP_X")},
			wantOK:  true,
		},
		{
			name:    "first stop only rejects on first mismatch",
			policy:  MatchingConfig{MatchAgainstFirstStopID: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_X"), stu(2, "STOP_B")},
			wantOK:  false,
		},
		{
			name:    "all stops accepts full match",
			policy:  MatchingConfig{MatchAgainstStopIDs: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A"), stu(2, "STOP_B"), stu(3, "STOP_C")},
			wantOK:  true,
		},
		{
			name:    "all stops rejects any mismatch",
			policy:  MatchingConfig{MatchAgainstStopIDs: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A"), stu(2, "STOP_X")},
			wantOK:  false,
		},
		{
			name:         "removal policy stages mismatches",
			policy:       MatchingConfig{RemoveInvalidStopIDs: true},
			nominal:      nominal,
			stus:         []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A"), stu(2, "STOP_X"), stu(3, "STOP_C")},
			wantOK:       true,
			wantRemovals: []int{1},
		},
		{
			name:    "strict match wins over removal",
			policy:  MatchingConfig{MatchAgainstStopIDs: true, RemoveInvalidStopIDs: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A"), stu(2, "STOP_X")},
			wantOK:  false,
		},
		{
			name:    "sequence beyond nominal run rejects",
			policy:  MatchingConfig{RemoveInvalidStopIDs: true},
			nominal: nominal,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(4, "STOP_C")},
			wantOK:  false,
		},
		{
			name:    "empty nominal run rejects",
			policy:  MatchingConfig{MatchAgainstFirstStopID: true},
			nominal: nil,
			stus:    []*gtfsrt.TripUpdate_StopTimeUpdate{stu(1, "STOP_A")},
			wantOK:  false,
		},
		{
			name:    "missing sequence checks against first stop",
			policy:  MatchingConfig{MatchAgainstStopIDs: true},
			nominal: nominal,
			stus: []*gtfsrt.TripUpdate_StopTimeUpdate{
				{StopId: proto.String("STOP_A")},
			},
			wantOK: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(tc.policy)
			update := &gtfsrt.TripUpdate{StopTimeUpdate: tc.stus}

			removals, ok := m.verifyStopSequence(tc.nominal, update)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				if len(tc.wantRemovals) == 0 {
					assert.Empty(t, removals)
				} else {
					assert.Equal(t, tc.wantRemovals, removals)
				}
			}
		})
	}
}

func TestProcessTripUpdatesKnownTrip(t *testing.T) {
	m := newTestMatcher(MatchingConfig{MatchAgainstFirstStopID: true, RemoveInvalidStopIDs: true})
	queues := NewQueues()

	entity := tripUpdateEntity("ext-1", &gtfsrt.TripDescriptor{
		TripId:               proto.String("TRIP_1"),
		RouteId:              proto.String("R1"),
		StartTime:            proto.String("08:00:00"),
		StartDate:            proto.String("20250106"),
		ScheduleRelationship: gtfsrt.TripDescriptor_SCHEDULED.Enum(),
	}, stu(1, "STOP_A"), stu(2, "STOP_B"))
	payload := marshalTestFeed(t, matcherNow, entity)

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), payload, queues))

	require.Equal(t, 1, queues.TripInserts.Len())
	rows, _ := queues.TripInserts.Pop()
	assert.Equal(t, "ext-1", rows.Update.ID)
	assert.Equal(t, "TRIP_1", *rows.Update.TripID)
	assert.Equal(t, "R1", *rows.Update.TripRouteID)
	assert.Equal(t, "SCHEDULED", *rows.Update.TripScheduleRelationship)
	require.Len(t, rows.StopTimeUpdates, 2)
	assert.Equal(t, int64(1), *rows.StopTimeUpdates[0].StopSequence)
	assert.Equal(t, "STOP_A", *rows.StopTimeUpdates[0].StopID)
	assert.Equal(t, int64(60), *rows.StopTimeUpdates[0].DepartureDelay)
	assert.Equal(t, matcherNow, rows.Update.LastUpdated)
}

func TestProcessTripUpdatesDeleted(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	entity := tripUpdateEntity("TRIP_1", &gtfsrt.TripDescriptor{TripId: proto.String("TRIP_1")})
	entity.IsDeleted = proto.Bool(true)
	payload := marshalTestFeed(t, matcherNow, entity)

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), payload, queues))

	assert.Zero(t, queues.TripInserts.Len())
	require.Equal(t, 1, queues.TripDeletes.Len())
	rows, _ := queues.TripDeletes.Pop()
	assert.Equal(t, "TRIP_1", rows.Update.ID)
}

func TestProcessTripUpdatesCandidateMatch(t *testing.T) {
	m := newTestMatcher(MatchingConfig{MatchAgainstFirstStopID: true, RemoveInvalidStopIDs: true})
	queues := NewQueues()

	// Unknown trip_id, but route and start time point at TRIP_1. The
	// second update references a foreign stop and is removed.
	entity := tripUpdateEntity("feed-4711", &gtfsrt.TripDescriptor{
		TripId:    proto.String("feed-4711"),
		RouteId:   proto.String("ext-1"),
		StartTime: proto.String("08:00:00"),
	}, stu(1, "ext-stop-a"), stu(2, "STOP_X"), stu(3, "STOP_C"))
	payload := marshalTestFeed(t, matcherNow, entity)

	mapping := &Mapping{
		Routes: map[string]string{"ext-1": "R1"},
		Stops:  map[string]string{"ext-stop-a": "STOP_A"},
	}

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), mapping, payload, queues))

	require.Equal(t, 1, queues.TripInserts.Len())
	rows, _ := queues.TripInserts.Pop()
	assert.Equal(t, "TRIP_1", rows.Update.ID)
	assert.Equal(t, "TRIP_1", *rows.Update.TripID)
	assert.Equal(t, "R1", *rows.Update.TripRouteID)
	require.Len(t, rows.StopTimeUpdates, 2)
	assert.Equal(t, "STOP_A", *rows.StopTimeUpdates[0].StopID)
	assert.Equal(t, "STOP_C", *rows.StopTimeUpdates[1].StopID)
}

func TestProcessTripUpdatesUnmatchedDropped(t *testing.T) {
	m := newTestMatcher(MatchingConfig{MatchAgainstFirstStopID: true})
	queues := NewQueues()

	entities := []*gtfsrt.FeedEntity{
		// No start time, unknown trip.
		tripUpdateEntity("a", &gtfsrt.TripDescriptor{
			TripId:  proto.String("feed-1"),
			RouteId: proto.String("R1"),
		}),
		// No candidate departs at this time.
		tripUpdateEntity("b", &gtfsrt.TripDescriptor{
			TripId:    proto.String("feed-2"),
			RouteId:   proto.String("R1"),
			StartTime: proto.String("23:59:00"),
		}),
		// Candidate exists but first stop mismatches.
		tripUpdateEntity("c", &gtfsrt.TripDescriptor{
			TripId:    proto.String("feed-3"),
			RouteId:   proto.String("R1"),
			StartTime: proto.String("08:00:00"),
		}, stu(1, "STOP_D")),
		// No trip descriptor at all.
		{Id: proto.String("d"), TripUpdate: &gtfsrt.TripUpdate{}},
	}
	payload := marshalTestFeed(t, matcherNow, entities...)

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), payload, queues))
	assert.Zero(t, queues.Pending())
}

func TestProcessTripUpdatesStaleFeed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewMatcher(MatchingConfig{}, "de-DE", zap.New(core))
	m.now = func() time.Time { return matcherNow }
	queues := NewQueues()

	entity := tripUpdateEntity("TRIP_1", &gtfsrt.TripDescriptor{TripId: proto.String("TRIP_1")})
	payload := marshalTestFeed(t, matcherNow.Add(-3*time.Hour), entity)

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), payload, queues))
	assert.Zero(t, queues.Pending())
	assert.Equal(t, 1, logs.FilterMessage("discarding stale feed message").Len())
}

func TestProcessTripUpdatesMismatchLogLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewMatcher(MatchingConfig{MatchAgainstFirstStopID: true}, "de-DE", zap.New(core))
	m.now = func() time.Time { return matcherNow }
	queues := NewQueues()

	// A candidate exists for R1 at 08:00 but its first stop differs:
	// that drop warns. The unknown trip without candidates stays quiet.
	entities := []*gtfsrt.FeedEntity{
		tripUpdateEntity("mismatch", &gtfsrt.TripDescriptor{
			TripId:    proto.String("feed-1"),
			RouteId:   proto.String("R1"),
			StartTime: proto.String("08:00:00"),
		}, stu(1, "STOP_D")),
		tripUpdateEntity("unknown", &gtfsrt.TripDescriptor{
			TripId:    proto.String("feed-2"),
			RouteId:   proto.String("R1"),
			StartTime: proto.String("23:59:00"),
		}),
	}
	payload := marshalTestFeed(t, matcherNow, entities...)

	require.NoError(t, m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), payload, queues))
	assert.Zero(t, queues.Pending())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel)
	require.Equal(t, 1, warnings.Len())
	assert.Equal(t, "dropping trip update after stop sequence mismatch", warnings.All()[0].Message)
	assert.Equal(t, 1, logs.FilterMessage("dropping unmatched trip update").Len())
}

func TestProcessTripUpdatesCorruptPayload(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	err := m.ProcessTripUpdates(fixtureIndex(), emptyMapping(), []byte{0xff, 0xff, 0xff}, queues)
	assert.Error(t, err)
	assert.Zero(t, queues.Pending())
}

func emptyMapping() *Mapping {
	return &Mapping{Routes: map[string]string{}, Stops: map[string]string{}}
}

func alertEntity(id string, alert *gtfsrt.Alert) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{Id: proto.String(id), Alert: alert}
}

func TestProcessServiceAlerts(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	alert := &gtfsrt.Alert{
		Cause:  gtfsrt.Alert_CONSTRUCTION.Enum(),
		Effect: gtfsrt.Alert_DETOUR.Enum(),
		ActivePeriod: []*gtfsrt.TimeRange{
			{Start: proto.Uint64(1736150400), End: proto.Uint64(1736236800)},
		},
		InformedEntity: []*gtfsrt.EntitySelector{
			{RouteId: proto.String("ext-1")},
			{StopId: proto.String("STOP_X")},
			{StopId: proto.String("STOP_B")},
		},
		HeaderText: &gtfsrt.TranslatedString{
			Translation: []*gtfsrt.TranslatedString_Translation{
				{Text: proto.String("Detour"), Language: proto.String("en")},
				{Text: proto.String("Umleitung"), Language: proto.String("de-DE")},
			},
		},
	}
	payload := marshalTestFeed(t, matcherNow, alertEntity("ALERT_1", alert))

	mapping := &Mapping{Routes: map[string]string{"ext-1": "R1"}, Stops: map[string]string{}}
	require.NoError(t, m.ProcessServiceAlerts(fixtureIndex(), mapping, payload, queues))

	require.Equal(t, 1, queues.AlertInserts.Len())
	rows, _ := queues.AlertInserts.Pop()

	assert.Equal(t, "ALERT_1", rows.Alert.ID)
	assert.Equal(t, "CONSTRUCTION", *rows.Alert.Cause)
	assert.Equal(t, "DETOUR", *rows.Alert.Effect)
	assert.Equal(t, "UNKNOWN_SEVERITY", *rows.Alert.SeverityLevel)
	assert.Equal(t, "Umleitung", *rows.Alert.HeaderText)

	require.Len(t, rows.ActivePeriods, 1)
	assert.Equal(t, int64(1736150400), *rows.ActivePeriods[0].Start)

	// STOP_X is not nominal: its selector is dropped, the others stay.
	require.Len(t, rows.InformedEntities, 2)
	assert.Equal(t, "R1", *rows.InformedEntities[0].RouteID)
	assert.Equal(t, "STOP_B", *rows.InformedEntities[1].StopID)
}

func TestProcessServiceAlertsDropped(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	// Every informed entity references unknown IDs only.
	alert := &gtfsrt.Alert{
		InformedEntity: []*gtfsrt.EntitySelector{
			{RouteId: proto.String("R404")},
			{StopId: proto.String("STOP_X")},
		},
	}
	payload := marshalTestFeed(t, matcherNow, alertEntity("ALERT_1", alert))

	require.NoError(t, m.ProcessServiceAlerts(fixtureIndex(), emptyMapping(), payload, queues))
	assert.Zero(t, queues.Pending())
}

func TestProcessServiceAlertsDeleted(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	entity := alertEntity("ALERT_1", &gtfsrt.Alert{
		InformedEntity: []*gtfsrt.EntitySelector{{RouteId: proto.String("R1")}},
	})
	entity.IsDeleted = proto.Bool(true)
	payload := marshalTestFeed(t, matcherNow, entity)

	require.NoError(t, m.ProcessServiceAlerts(fixtureIndex(), emptyMapping(), payload, queues))

	require.Equal(t, 1, queues.AlertDeletes.Len())
	rows, _ := queues.AlertDeletes.Pop()
	assert.Equal(t, "ALERT_1", rows.Alert.ID)
}

func TestProcessServiceAlertsDeletedUnresolvableReferences(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	// The deleted alert only references IDs the timetable no longer
	// knows. It still has to reach the delete queue so the stored row
	// goes away before age-out.
	entity := alertEntity("ALERT_1", &gtfsrt.Alert{
		InformedEntity: []*gtfsrt.EntitySelector{{RouteId: proto.String("R404")}},
	})
	entity.IsDeleted = proto.Bool(true)
	payload := marshalTestFeed(t, matcherNow, entity)

	require.NoError(t, m.ProcessServiceAlerts(fixtureIndex(), emptyMapping(), payload, queues))

	assert.Zero(t, queues.AlertInserts.Len())
	require.Equal(t, 1, queues.AlertDeletes.Len())
	rows, _ := queues.AlertDeletes.Pop()
	assert.Equal(t, "ALERT_1", rows.Alert.ID)
}

func TestProcessServiceAlertsRouteTypeSelector(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	// A selector addressing a whole mode carries route_type only.
	alert := &gtfsrt.Alert{
		InformedEntity: []*gtfsrt.EntitySelector{
			{RouteType: proto.Int32(3)},
		},
	}
	payload := marshalTestFeed(t, matcherNow, alertEntity("ALERT_1", alert))

	require.NoError(t, m.ProcessServiceAlerts(fixtureIndex(), emptyMapping(), payload, queues))

	require.Equal(t, 1, queues.AlertInserts.Len())
	rows, _ := queues.AlertInserts.Pop()
	require.Len(t, rows.InformedEntities, 1)
	assert.Equal(t, int64(3), *rows.InformedEntities[0].RouteType)
}

func TestProcessVehiclePositions(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	entity := &gtfsrt.FeedEntity{
		Id: proto.String("V1"),
		Vehicle: &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{
				TripId:  proto.String("TRIP_1"),
				RouteId: proto.String("ext-1"),
			},
			Vehicle: &gtfsrt.VehicleDescriptor{Id: proto.String("BUS_7")},
			Position: &gtfsrt.Position{
				Latitude:  proto.Float32(48.78),
				Longitude: proto.Float32(9.18),
			},
			StopId:        proto.String("ext-stop-a"),
			CurrentStatus: gtfsrt.VehiclePosition_IN_TRANSIT_TO.Enum(),
		},
	}
	payload := marshalTestFeed(t, matcherNow, entity)

	mapping := &Mapping{
		Routes: map[string]string{"ext-1": "R1"},
		Stops:  map[string]string{"ext-stop-a": "STOP_A"},
	}
	require.NoError(t, m.ProcessVehiclePositions(fixtureIndex(), mapping, payload, queues))

	require.Equal(t, 1, queues.VehicleInserts.Len())
	row, _ := queues.VehicleInserts.Pop()
	assert.Equal(t, "V1", row.ID)
	assert.Equal(t, "R1", *row.TripRouteID)
	assert.Equal(t, "STOP_A", *row.StopID)
	assert.Equal(t, "BUS_7", *row.VehicleID)
	assert.Nil(t, row.VehicleWheelchairAccessible)
	assert.Equal(t, "IN_TRANSIT_TO", *row.CurrentStatus)
	assert.InDelta(t, 48.78, *row.Latitude, 0.001)
	assert.InDelta(t, 9.18, *row.Longitude, 0.001)
}

func TestProcessVehiclePositionsDeleted(t *testing.T) {
	m := newTestMatcher(MatchingConfig{})
	queues := NewQueues()

	entity := &gtfsrt.FeedEntity{
		Id:        proto.String("V1"),
		IsDeleted: proto.Bool(true),
		Vehicle:   &gtfsrt.VehiclePosition{},
	}
	payload := marshalTestFeed(t, matcherNow, entity)

	require.NoError(t, m.ProcessVehiclePositions(fixtureIndex(), emptyMapping(), payload, queues))

	require.Equal(t, 1, queues.VehicleDeletes.Len())
	row, _ := queues.VehicleDeletes.Pop()
	assert.Equal(t, "V1", row.ID)
}
