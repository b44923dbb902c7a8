package transitlake

import (
	"strconv"
	"strings"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/transitlake/transitlake/storage"
)

// defaultSeverity is persisted when an alert carries no severity.
const defaultSeverity = "UNKNOWN_SEVERITY"

func ptrTo[T any](v T) *T {
	return &v
}

// tripDescriptorColumns flattens a trip descriptor into the trip_*
// columns shared by several realtime tables. Unset fields stay nil.
func tripDescriptorColumns(trip *gtfsrt.TripDescriptor) (tripID, routeID, directionID, startTime, startDate, schedule *string) {
	if trip == nil {
		return
	}

	tripID = trip.TripId
	routeID = trip.RouteId
	if trip.DirectionId != nil {
		directionID = ptrTo(strconv.FormatUint(uint64(trip.GetDirectionId()), 10))
	}
	startTime = trip.StartTime
	startDate = trip.StartDate
	if trip.ScheduleRelationship != nil {
		schedule = ptrTo(trip.GetScheduleRelationship().String())
	}
	return
}

// vehicleDescriptorColumns flattens a vehicle descriptor. The
// vehicle_wheelchair_accessible column stays NULL: the pinned
// bindings predate that descriptor field.
func vehicleDescriptorColumns(vehicle *gtfsrt.VehicleDescriptor) (id, label, licensePlate *string) {
	if vehicle == nil {
		return
	}

	id = vehicle.Id
	label = vehicle.Label
	licensePlate = vehicle.LicensePlate
	return
}

// translatedText picks the translation matching the configured
// language's primary subtag, falling back to the first translation.
func (m *Matcher) translatedText(ts *gtfsrt.TranslatedString) *string {
	translations := ts.GetTranslation()
	if len(translations) == 0 {
		return nil
	}

	primary, _, _ := strings.Cut(m.language, "-")
	for _, t := range translations {
		lang, _, _ := strings.Cut(t.GetLanguage(), "-")
		if lang == primary {
			return ptrTo(t.GetText())
		}
	}

	return ptrTo(translations[0].GetText())
}

func uintColumn(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	return ptrTo(int64(*v))
}

func uint32Column(v *uint32) *int64 {
	if v == nil {
		return nil
	}
	return ptrTo(int64(*v))
}

func int32Column(v *int32) *int64 {
	if v == nil {
		return nil
	}
	return ptrTo(int64(*v))
}

func float32Column(v *float32) *float64 {
	if v == nil {
		return nil
	}
	return ptrTo(float64(*v))
}

func (m *Matcher) tripUpdateRows(entity *gtfsrt.FeedEntity) *TripUpdateRows {
	update := entity.GetTripUpdate()
	now := m.now().UTC()

	row := &storage.TripUpdate{
		ID:          entity.GetId(),
		Timestamp:   uintColumn(update.Timestamp),
		LastUpdated: now,
	}
	row.TripID, row.TripRouteID, row.TripDirectionID, row.TripStartTime,
		row.TripStartDate, row.TripScheduleRelationship = tripDescriptorColumns(update.GetTrip())
	row.VehicleID, row.VehicleLabel,
		row.VehicleLicensePlate = vehicleDescriptorColumns(update.GetVehicle())

	stus := []*storage.StopTimeUpdate{}
	for _, stu := range update.GetStopTimeUpdate() {
		child := &storage.StopTimeUpdate{
			TripUpdateID: entity.GetId(),
			StopSequence: uint32Column(stu.StopSequence),
			StopID:       stu.StopId,
			LastUpdated:  now,
		}
		if arrival := stu.GetArrival(); arrival != nil {
			child.ArrivalTime = arrival.Time
			child.ArrivalDelay = int32Column(arrival.Delay)
			child.ArrivalUncertainty = int32Column(arrival.Uncertainty)
		}
		if departure := stu.GetDeparture(); departure != nil {
			child.DepartureTime = departure.Time
			child.DepartureDelay = int32Column(departure.Delay)
			child.DepartureUncertainty = int32Column(departure.Uncertainty)
		}
		if stu.ScheduleRelationship != nil {
			child.ScheduleRelationship = ptrTo(stu.GetScheduleRelationship().String())
		}
		stus = append(stus, child)
	}

	return &TripUpdateRows{Update: row, StopTimeUpdates: stus}
}

func (m *Matcher) serviceAlertRows(entity *gtfsrt.FeedEntity) *ServiceAlertRows {
	alert := entity.GetAlert()
	now := m.now().UTC()

	row := &storage.ServiceAlert{
		ID:                 entity.GetId(),
		URL:                m.translatedText(alert.GetUrl()),
		HeaderText:         m.translatedText(alert.GetHeaderText()),
		DescriptionText:    m.translatedText(alert.GetDescriptionText()),
		TTSHeaderText:      m.translatedText(alert.GetTtsHeaderText()),
		TTSDescriptionText: m.translatedText(alert.GetTtsDescriptionText()),
		SeverityLevel:      ptrTo(defaultSeverity),
		LastUpdated:        now,
	}
	if alert.Cause != nil {
		row.Cause = ptrTo(alert.GetCause().String())
	}
	if alert.Effect != nil {
		row.Effect = ptrTo(alert.GetEffect().String())
	}
	if alert.SeverityLevel != nil {
		row.SeverityLevel = ptrTo(alert.GetSeverityLevel().String())
	}

	periods := []*storage.AlertActivePeriod{}
	for _, p := range alert.GetActivePeriod() {
		periods = append(periods, &storage.AlertActivePeriod{
			AlertID:     entity.GetId(),
			Start:       uintColumn(p.Start),
			End:         uintColumn(p.End),
			LastUpdated: now,
		})
	}

	entities := []*storage.AlertInformedEntity{}
	for _, ie := range alert.GetInformedEntity() {
		child := &storage.AlertInformedEntity{
			AlertID:     entity.GetId(),
			AgencyID:    ie.AgencyId,
			RouteID:     ie.RouteId,
			RouteType:   int32Column(ie.RouteType),
			StopID:      ie.StopId,
			LastUpdated: now,
		}
		child.TripID, child.TripRouteID, child.TripDirectionID, child.TripStartTime,
			child.TripStartDate, child.TripScheduleRelationship = tripDescriptorColumns(ie.GetTrip())
		entities = append(entities, child)
	}

	return &ServiceAlertRows{Alert: row, ActivePeriods: periods, InformedEntities: entities}
}

func (m *Matcher) vehiclePositionRow(entity *gtfsrt.FeedEntity) *storage.VehiclePosition {
	position := entity.GetVehicle()

	row := &storage.VehiclePosition{
		ID:                  entity.GetId(),
		CurrentStopSequence: uint32Column(position.CurrentStopSequence),
		StopID:              position.StopId,
		Timestamp:           uintColumn(position.Timestamp),
		LastUpdated:         m.now().UTC(),
	}
	row.TripID, row.TripRouteID, row.TripDirectionID, row.TripStartTime,
		row.TripStartDate, row.TripScheduleRelationship = tripDescriptorColumns(position.GetTrip())
	row.VehicleID, row.VehicleLabel,
		row.VehicleLicensePlate = vehicleDescriptorColumns(position.GetVehicle())

	if p := position.GetPosition(); p != nil {
		row.Latitude = float32Column(p.Latitude)
		row.Longitude = float32Column(p.Longitude)
		row.Bearing = float32Column(p.Bearing)
		row.Odometer = p.Odometer
		row.Speed = float32Column(p.Speed)
	}
	if position.CurrentStatus != nil {
		row.CurrentStatus = ptrTo(position.GetCurrentStatus().String())
	}
	if position.CongestionLevel != nil {
		row.CongestionLevel = ptrTo(position.GetCongestionLevel().String())
	}

	return row
}
