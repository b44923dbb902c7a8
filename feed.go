package transitlake

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/transitlake/transitlake/storage"
)

// Output formats of the feed endpoints.
const (
	FormatPBF  = "pbf"
	FormatJSON = "json"
)

// NewFeedHeader builds the header shared by all responses. The
// timestamp is the current second in the server's timezone.
func NewFeedHeader(now time.Time, loc *time.Location) *gtfsrt.FeedHeader {
	return &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      gtfsrt.FeedHeader_FULL_DATASET.Enum(),
		Timestamp:           proto.Uint64(uint64(now.In(loc).Unix())),
	}
}

// MarshalFeed serializes a feed message, defaulting to protobuf.
func MarshalFeed(feed *gtfsrt.FeedMessage, format string) ([]byte, string, error) {
	if format == FormatJSON {
		data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(feed)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling feed to json: %w", err)
		}
		return data, "application/json", nil
	}

	data, err := proto.Marshal(feed)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling feed: %w", err)
	}
	return data, "application/octet-stream", nil
}

// tripDescriptorFromColumns rebuilds a trip descriptor from flattened
// columns. All-nil columns yield no descriptor at all.
func tripDescriptorFromColumns(tripID, routeID, directionID, startTime, startDate, schedule *string) *gtfsrt.TripDescriptor {
	if tripID == nil && routeID == nil && directionID == nil &&
		startTime == nil && startDate == nil && schedule == nil {
		return nil
	}

	trip := &gtfsrt.TripDescriptor{
		TripId:    tripID,
		RouteId:   routeID,
		StartTime: startTime,
		StartDate: startDate,
	}
	if directionID != nil {
		if v, err := strconv.ParseUint(*directionID, 10, 32); err == nil {
			trip.DirectionId = proto.Uint32(uint32(v))
		}
	}
	if schedule != nil {
		if v, ok := gtfsrt.TripDescriptor_ScheduleRelationship_value[*schedule]; ok {
			trip.ScheduleRelationship = gtfsrt.TripDescriptor_ScheduleRelationship(v).Enum()
		}
	}

	return trip
}

func vehicleDescriptorFromColumns(id, label, licensePlate *string) *gtfsrt.VehicleDescriptor {
	if id == nil && label == nil && licensePlate == nil {
		return nil
	}

	return &gtfsrt.VehicleDescriptor{
		Id:           id,
		Label:        label,
		LicensePlate: licensePlate,
	}
}

func translatedString(text *string, language string) *gtfsrt.TranslatedString {
	if text == nil {
		return nil
	}
	return &gtfsrt.TranslatedString{
		Translation: []*gtfsrt.TranslatedString_Translation{
			{Text: text, Language: proto.String(language)},
		},
	}
}

// BuildTripUpdatesFeed projects trip update rows into a feed message,
// ordered by start date and start time. Updates left with no stop time
// updates are omitted.
func BuildTripUpdatesFeed(header *gtfsrt.FeedHeader, updates []*storage.TripUpdate, stus []*storage.StopTimeUpdate) *gtfsrt.FeedMessage {
	children := map[string][]*storage.StopTimeUpdate{}
	for _, stu := range stus {
		children[stu.TripUpdateID] = append(children[stu.TripUpdateID], stu)
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return tripUpdateSortKey(updates[i]) < tripUpdateSortKey(updates[j])
	})

	feed := &gtfsrt.FeedMessage{Header: header}
	for _, tu := range updates {
		rows := children[tu.ID]
		if len(rows) == 0 {
			continue
		}

		update := &gtfsrt.TripUpdate{
			Trip: tripDescriptorFromColumns(tu.TripID, tu.TripRouteID, tu.TripDirectionID,
				tu.TripStartTime, tu.TripStartDate, tu.TripScheduleRelationship),
			Vehicle: vehicleDescriptorFromColumns(tu.VehicleID, tu.VehicleLabel,
				tu.VehicleLicensePlate),
		}
		if tu.Timestamp != nil {
			update.Timestamp = proto.Uint64(uint64(*tu.Timestamp))
		}

		for _, row := range rows {
			stu := &gtfsrt.TripUpdate_StopTimeUpdate{
				StopId: row.StopID,
			}
			if row.StopSequence != nil {
				stu.StopSequence = proto.Uint32(uint32(*row.StopSequence))
			}
			stu.Arrival = stopTimeEvent(row.ArrivalTime, row.ArrivalDelay, row.ArrivalUncertainty)
			stu.Departure = stopTimeEvent(row.DepartureTime, row.DepartureDelay, row.DepartureUncertainty)
			if row.ScheduleRelationship != nil {
				if v, ok := gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship_value[*row.ScheduleRelationship]; ok {
					stu.ScheduleRelationship = gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship(v).Enum()
				}
			}
			update.StopTimeUpdate = append(update.StopTimeUpdate, stu)
		}

		feed.Entity = append(feed.Entity, &gtfsrt.FeedEntity{
			Id:         proto.String(tu.ID),
			TripUpdate: update,
		})
	}

	return feed
}

func tripUpdateSortKey(tu *storage.TripUpdate) string {
	return stringOrEmpty(tu.TripStartDate) + "-" + stringOrEmpty(tu.TripStartTime)
}

func stopTimeEvent(t, delay, uncertainty *int64) *gtfsrt.TripUpdate_StopTimeEvent {
	if t == nil && delay == nil && uncertainty == nil {
		return nil
	}

	event := &gtfsrt.TripUpdate_StopTimeEvent{
		Time: t,
	}
	if delay != nil {
		event.Delay = proto.Int32(int32(*delay))
	}
	if uncertainty != nil {
		event.Uncertainty = proto.Int32(int32(*uncertainty))
	}
	return event
}

// BuildServiceAlertsFeed projects alert rows into a feed message.
// Alerts are ordered by their earliest active period, latest first;
// alerts without a period lead. Emitted translations carry the
// configured language.
func BuildServiceAlertsFeed(header *gtfsrt.FeedHeader, language string, alerts []*storage.ServiceAlert,
	periods []*storage.AlertActivePeriod, entities []*storage.AlertInformedEntity) *gtfsrt.FeedMessage {

	periodsByAlert := map[string][]*storage.AlertActivePeriod{}
	for _, p := range periods {
		periodsByAlert[p.AlertID] = append(periodsByAlert[p.AlertID], p)
	}
	entitiesByAlert := map[string][]*storage.AlertInformedEntity{}
	for _, e := range entities {
		entitiesByAlert[e.AlertID] = append(entitiesByAlert[e.AlertID], e)
	}

	earliest := map[string]int64{}
	for _, sa := range alerts {
		e := int64(math.MaxInt64)
		for _, p := range periodsByAlert[sa.ID] {
			if p.Start != nil && *p.Start < e {
				e = *p.Start
			}
		}
		earliest[sa.ID] = e
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return earliest[alerts[i].ID] > earliest[alerts[j].ID]
	})

	feed := &gtfsrt.FeedMessage{Header: header}
	for _, sa := range alerts {
		alert := &gtfsrt.Alert{
			Url:                translatedString(sa.URL, language),
			HeaderText:         translatedString(sa.HeaderText, language),
			DescriptionText:    translatedString(sa.DescriptionText, language),
			TtsHeaderText:      translatedString(sa.TTSHeaderText, language),
			TtsDescriptionText: translatedString(sa.TTSDescriptionText, language),
		}
		if sa.Cause != nil {
			if v, ok := gtfsrt.Alert_Cause_value[*sa.Cause]; ok {
				alert.Cause = gtfsrt.Alert_Cause(v).Enum()
			}
		}
		if sa.Effect != nil {
			if v, ok := gtfsrt.Alert_Effect_value[*sa.Effect]; ok {
				alert.Effect = gtfsrt.Alert_Effect(v).Enum()
			}
		}
		if sa.SeverityLevel != nil {
			if v, ok := gtfsrt.Alert_SeverityLevel_value[*sa.SeverityLevel]; ok {
				alert.SeverityLevel = gtfsrt.Alert_SeverityLevel(v).Enum()
			}
		}

		for _, p := range periodsByAlert[sa.ID] {
			period := &gtfsrt.TimeRange{}
			if p.Start != nil {
				period.Start = proto.Uint64(uint64(*p.Start))
			}
			if p.End != nil {
				period.End = proto.Uint64(uint64(*p.End))
			}
			alert.ActivePeriod = append(alert.ActivePeriod, period)
		}

		for _, e := range entitiesByAlert[sa.ID] {
			selector := &gtfsrt.EntitySelector{
				AgencyId: e.AgencyID,
				RouteId:  e.RouteID,
				StopId:   e.StopID,
				Trip: tripDescriptorFromColumns(e.TripID, e.TripRouteID, e.TripDirectionID,
					e.TripStartTime, e.TripStartDate, e.TripScheduleRelationship),
			}
			if e.RouteType != nil {
				selector.RouteType = proto.Int32(int32(*e.RouteType))
			}
			alert.InformedEntity = append(alert.InformedEntity, selector)
		}

		feed.Entity = append(feed.Entity, &gtfsrt.FeedEntity{
			Id:    proto.String(sa.ID),
			Alert: alert,
		})
	}

	return feed
}

// BuildVehiclePositionsFeed projects vehicle position rows into a feed
// message.
func BuildVehiclePositionsFeed(header *gtfsrt.FeedHeader, positions []*storage.VehiclePosition) *gtfsrt.FeedMessage {
	feed := &gtfsrt.FeedMessage{Header: header}
	for _, vp := range positions {
		position := &gtfsrt.VehiclePosition{
			Trip: tripDescriptorFromColumns(vp.TripID, vp.TripRouteID, vp.TripDirectionID,
				vp.TripStartTime, vp.TripStartDate, vp.TripScheduleRelationship),
			Vehicle: vehicleDescriptorFromColumns(vp.VehicleID, vp.VehicleLabel,
				vp.VehicleLicensePlate),
			StopId: vp.StopID,
		}
		if vp.Latitude != nil && vp.Longitude != nil {
			position.Position = &gtfsrt.Position{
				Latitude:  proto.Float32(float32(*vp.Latitude)),
				Longitude: proto.Float32(float32(*vp.Longitude)),
			}
			if vp.Bearing != nil {
				position.Position.Bearing = proto.Float32(float32(*vp.Bearing))
			}
			position.Position.Odometer = vp.Odometer
			if vp.Speed != nil {
				position.Position.Speed = proto.Float32(float32(*vp.Speed))
			}
		}
		if vp.CurrentStopSequence != nil {
			position.CurrentStopSequence = proto.Uint32(uint32(*vp.CurrentStopSequence))
		}
		if vp.CurrentStatus != nil {
			if v, ok := gtfsrt.VehiclePosition_VehicleStopStatus_value[*vp.CurrentStatus]; ok {
				position.CurrentStatus = gtfsrt.VehiclePosition_VehicleStopStatus(v).Enum()
			}
		}
		if vp.Timestamp != nil {
			position.Timestamp = proto.Uint64(uint64(*vp.Timestamp))
		}
		if vp.CongestionLevel != nil {
			if v, ok := gtfsrt.VehiclePosition_CongestionLevel_value[*vp.CongestionLevel]; ok {
				position.CongestionLevel = gtfsrt.VehiclePosition_CongestionLevel(v).Enum()
			}
		}

		feed.Entity = append(feed.Entity, &gtfsrt.FeedEntity{
			Id:      proto.String(vp.ID),
			Vehicle: position,
		})
	}

	return feed
}
