package transitlake

import (
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/transitlake/transitlake/storage"
)

func testHeader() *gtfsrt.FeedHeader {
	return NewFeedHeader(time.Date(2025, 1, 6, 8, 30, 0, 0, time.UTC), time.UTC)
}

func TestNewFeedHeader(t *testing.T) {
	header := testHeader()
	assert.Equal(t, "2.0", header.GetGtfsRealtimeVersion())
	assert.Equal(t, gtfsrt.FeedHeader_FULL_DATASET, header.GetIncrementality())
	assert.Equal(t, uint64(1736152200), header.GetTimestamp())
}

func TestMarshalFeed(t *testing.T) {
	feed := &gtfsrt.FeedMessage{Header: testHeader()}

	data, contentType, err := MarshalFeed(feed, FormatPBF)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", contentType)
	decoded := &gtfsrt.FeedMessage{}
	require.NoError(t, proto.Unmarshal(data, decoded))
	assert.Equal(t, "2.0", decoded.GetHeader().GetGtfsRealtimeVersion())

	data, contentType, err = MarshalFeed(feed, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Contains(t, string(data), `"gtfs_realtime_version"`)
	assert.Contains(t, string(data), `"FULL_DATASET"`)
}

func TestBuildTripUpdatesFeed(t *testing.T) {
	updates := []*storage.TripUpdate{
		{
			ID:                       "TRIP_1",
			TripID:                   ptrTo("TRIP_1"),
			TripRouteID:              ptrTo("R1"),
			TripStartTime:            ptrTo("08:00:00"),
			TripScheduleRelationship: ptrTo("SCHEDULED"),
			VehicleID:                ptrTo("BUS_7"),
			Timestamp:                ptrTo(int64(1736150400)),
		},
		// No stop time updates: omitted from the feed.
		{ID: "TRIP_2", TripID: ptrTo("TRIP_2")},
	}
	stus := []*storage.StopTimeUpdate{
		{
			TripUpdateID:   "TRIP_1",
			StopSequence:   ptrTo(int64(1)),
			StopID:         ptrTo("STOP_A"),
			DepartureDelay: ptrTo(int64(60)),
		},
		{
			TripUpdateID: "TRIP_1",
			StopSequence: ptrTo(int64(2)),
			StopID:       ptrTo("STOP_B"),
			ArrivalTime:  ptrTo(int64(1736151000)),
		},
	}

	feed := BuildTripUpdatesFeed(testHeader(), updates, stus)
	require.Len(t, feed.GetEntity(), 1)

	entity := feed.GetEntity()[0]
	assert.Equal(t, "TRIP_1", entity.GetId())

	update := entity.GetTripUpdate()
	assert.Equal(t, "TRIP_1", update.GetTrip().GetTripId())
	assert.Equal(t, "R1", update.GetTrip().GetRouteId())
	assert.Equal(t, gtfsrt.TripDescriptor_SCHEDULED, update.GetTrip().GetScheduleRelationship())
	assert.Equal(t, "BUS_7", update.GetVehicle().GetId())
	assert.Equal(t, uint64(1736150400), update.GetTimestamp())

	require.Len(t, update.GetStopTimeUpdate(), 2)
	first := update.GetStopTimeUpdate()[0]
	assert.Equal(t, uint32(1), first.GetStopSequence())
	assert.Equal(t, int32(60), first.GetDeparture().GetDelay())
	assert.Nil(t, first.GetArrival())
	second := update.GetStopTimeUpdate()[1]
	assert.Equal(t, int64(1736151000), second.GetArrival().GetTime())
	assert.Nil(t, second.GetDeparture())
}

func TestTripDescriptorFromColumns(t *testing.T) {
	assert.Nil(t, tripDescriptorFromColumns(nil, nil, nil, nil, nil, nil))

	trip := tripDescriptorFromColumns(ptrTo("TRIP_1"), ptrTo("R1"), ptrTo("1"),
		ptrTo("08:00:00"), ptrTo("20250106"), ptrTo("CANCELED"))
	require.NotNil(t, trip)
	assert.Equal(t, "TRIP_1", trip.GetTripId())
	assert.Equal(t, uint32(1), trip.GetDirectionId())
	assert.Equal(t, gtfsrt.TripDescriptor_CANCELED, trip.GetScheduleRelationship())

	// An unknown enum name leaves the field unset.
	trip = tripDescriptorFromColumns(ptrTo("TRIP_1"), nil, nil, nil, nil, ptrTo("BOGUS"))
	assert.Nil(t, trip.ScheduleRelationship)
}

func TestVehicleDescriptorFromColumns(t *testing.T) {
	assert.Nil(t, vehicleDescriptorFromColumns(nil, nil, nil))

	vehicle := vehicleDescriptorFromColumns(ptrTo("BUS_7"), ptrTo("7"), ptrTo("S-TL 7"))
	require.NotNil(t, vehicle)
	assert.Equal(t, "BUS_7", vehicle.GetId())
	assert.Equal(t, "7", vehicle.GetLabel())
	assert.Equal(t, "S-TL 7", vehicle.GetLicensePlate())
}

func TestBuildServiceAlertsFeed(t *testing.T) {
	alerts := []*storage.ServiceAlert{
		{
			ID:            "ALERT_1",
			Cause:         ptrTo("CONSTRUCTION"),
			Effect:        ptrTo("DETOUR"),
			HeaderText:    ptrTo("Umleitung"),
			SeverityLevel: ptrTo("WARNING"),
		},
	}
	periods := []*storage.AlertActivePeriod{
		{AlertID: "ALERT_1", Start: ptrTo(int64(1736150400))},
	}
	entities := []*storage.AlertInformedEntity{
		{AlertID: "ALERT_1", RouteID: ptrTo("R1")},
		{AlertID: "ALERT_1", StopID: ptrTo("STOP_A"), TripID: ptrTo("TRIP_1")},
	}

	feed := BuildServiceAlertsFeed(testHeader(), "de-DE", alerts, periods, entities)
	require.Len(t, feed.GetEntity(), 1)

	alert := feed.GetEntity()[0].GetAlert()
	assert.Equal(t, gtfsrt.Alert_CONSTRUCTION, alert.GetCause())
	assert.Equal(t, gtfsrt.Alert_DETOUR, alert.GetEffect())
	assert.Equal(t, gtfsrt.Alert_WARNING, alert.GetSeverityLevel())
	require.Len(t, alert.GetHeaderText().GetTranslation(), 1)
	assert.Equal(t, "Umleitung", alert.GetHeaderText().GetTranslation()[0].GetText())
	assert.Equal(t, "de-DE", alert.GetHeaderText().GetTranslation()[0].GetLanguage())
	assert.Nil(t, alert.GetDescriptionText())

	require.Len(t, alert.GetActivePeriod(), 1)
	assert.Equal(t, uint64(1736150400), alert.GetActivePeriod()[0].GetStart())

	require.Len(t, alert.GetInformedEntity(), 2)
	assert.Equal(t, "R1", alert.GetInformedEntity()[0].GetRouteId())
	assert.Equal(t, "TRIP_1", alert.GetInformedEntity()[1].GetTrip().GetTripId())
}

func TestBuildTripUpdatesFeedOrder(t *testing.T) {
	updates := []*storage.TripUpdate{
		{ID: "TRIP_LATE", TripID: ptrTo("TRIP_LATE"), TripStartDate: ptrTo("20250106"), TripStartTime: ptrTo("09:00:00")},
		{ID: "TRIP_PREV_DAY", TripID: ptrTo("TRIP_PREV_DAY"), TripStartDate: ptrTo("20250105"), TripStartTime: ptrTo("23:30:00")},
		{ID: "TRIP_EARLY", TripID: ptrTo("TRIP_EARLY"), TripStartDate: ptrTo("20250106"), TripStartTime: ptrTo("08:00:00")},
	}
	stus := []*storage.StopTimeUpdate{
		{TripUpdateID: "TRIP_LATE", StopSequence: ptrTo(int64(1))},
		{TripUpdateID: "TRIP_PREV_DAY", StopSequence: ptrTo(int64(1))},
		{TripUpdateID: "TRIP_EARLY", StopSequence: ptrTo(int64(1))},
	}

	feed := BuildTripUpdatesFeed(testHeader(), updates, stus)
	require.Len(t, feed.GetEntity(), 3)
	assert.Equal(t, "TRIP_PREV_DAY", feed.GetEntity()[0].GetId())
	assert.Equal(t, "TRIP_EARLY", feed.GetEntity()[1].GetId())
	assert.Equal(t, "TRIP_LATE", feed.GetEntity()[2].GetId())
}

func TestBuildServiceAlertsFeedOrder(t *testing.T) {
	alerts := []*storage.ServiceAlert{
		{ID: "ALERT_OLD"},
		{ID: "ALERT_NEW"},
		{ID: "ALERT_NO_PERIOD"},
	}
	periods := []*storage.AlertActivePeriod{
		{AlertID: "ALERT_OLD", Start: ptrTo(int64(1736100000))},
		{AlertID: "ALERT_OLD", Start: ptrTo(int64(1736200000))},
		{AlertID: "ALERT_NEW", Start: ptrTo(int64(1736150400))},
	}

	// Latest earliest period first; alerts without a period lead.
	feed := BuildServiceAlertsFeed(testHeader(), "de-DE", alerts, periods, nil)
	require.Len(t, feed.GetEntity(), 3)
	assert.Equal(t, "ALERT_NO_PERIOD", feed.GetEntity()[0].GetId())
	assert.Equal(t, "ALERT_NEW", feed.GetEntity()[1].GetId())
	assert.Equal(t, "ALERT_OLD", feed.GetEntity()[2].GetId())
}

func TestBuildVehiclePositionsFeed(t *testing.T) {
	positions := []*storage.VehiclePosition{
		{
			ID:            "V1",
			TripID:        ptrTo("TRIP_1"),
			VehicleID:     ptrTo("BUS_7"),
			Latitude:      ptrTo(48.78),
			Longitude:     ptrTo(9.18),
			Bearing:       ptrTo(90.0),
			CurrentStatus: ptrTo("STOPPED_AT"),
			Timestamp:     ptrTo(int64(1736150400)),
		},
		// Latitude without longitude: no position block.
		{ID: "V2", Latitude: ptrTo(48.78)},
	}

	feed := BuildVehiclePositionsFeed(testHeader(), positions)
	require.Len(t, feed.GetEntity(), 2)

	first := feed.GetEntity()[0].GetVehicle()
	require.NotNil(t, first.GetPosition())
	assert.InDelta(t, 48.78, first.GetPosition().GetLatitude(), 0.001)
	assert.InDelta(t, 90.0, first.GetPosition().GetBearing(), 0.001)
	assert.Equal(t, gtfsrt.VehiclePosition_STOPPED_AT, first.GetCurrentStatus())
	assert.Equal(t, uint64(1736150400), first.GetTimestamp())

	second := feed.GetEntity()[1].GetVehicle()
	assert.Nil(t, second.GetPosition())
}
