package storage

import (
	"time"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options controls how a store connection is opened.
type Options struct {
	// ReadOnly skips schema bootstrap. Readers serving HTTP traffic
	// open with this set so only the writer touches DDL.
	ReadOnly bool
}

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
	Lang     string
	Phone    string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType int8
}

type FeedInfo struct {
	PublisherName string
	PublisherURL  string
	Lang          string
	StartDate     string
	EndDate       string
	Version       string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      int
	URL       string
	Color     string
	TextColor string
}

type Shape struct {
	ID           string
	Lat          float64
	Lon          float64
	Sequence     uint32
	DistTraveled float64
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  int
	ParentStation string
	PlatformCode  string
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      string
	Departure    string
	Headsign     string
}

type Transfer struct {
	FromStopID      string
	ToStopID        string
	FromRouteID     string
	ToRouteID       string
	FromTripID      string
	ToTripID        string
	Type            int
	MinTransferTime int
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
	BlockID     string
	ShapeID     string
}

// TripUpdate is one row of realtime_trip_updates. Optional columns are
// pointers so NULLs survive the round trip into the feed projection.
type TripUpdate struct {
	ID                          string
	TripID                      *string
	TripRouteID                 *string
	TripDirectionID             *string
	TripStartTime               *string
	TripStartDate               *string
	TripScheduleRelationship    *string
	VehicleID                   *string
	VehicleLabel                *string
	VehicleLicensePlate         *string
	VehicleWheelchairAccessible *string
	Timestamp                   *int64
	LastUpdated                 time.Time
}

type StopTimeUpdate struct {
	TripUpdateID         string
	StopSequence         *int64
	StopID               *string
	ArrivalTime          *int64
	ArrivalDelay         *int64
	ArrivalUncertainty   *int64
	DepartureTime        *int64
	DepartureDelay       *int64
	DepartureUncertainty *int64
	ScheduleRelationship *string
	LastUpdated          time.Time
}

type ServiceAlert struct {
	ID                 string
	Cause              *string
	Effect             *string
	URL                *string
	HeaderText         *string
	DescriptionText    *string
	TTSHeaderText      *string
	TTSDescriptionText *string
	SeverityLevel      *string
	LastUpdated        time.Time
}

type AlertActivePeriod struct {
	AlertID     string
	Start       *int64
	End         *int64
	LastUpdated time.Time
}

type AlertInformedEntity struct {
	AlertID                  string
	AgencyID                 *string
	RouteID                  *string
	RouteType                *int64
	TripID                   *string
	TripRouteID              *string
	TripDirectionID          *string
	TripStartTime            *string
	TripStartDate            *string
	TripScheduleRelationship *string
	StopID                   *string
	LastUpdated              time.Time
}

type VehiclePosition struct {
	ID                          string
	TripID                      *string
	TripRouteID                 *string
	TripDirectionID             *string
	TripStartTime               *string
	TripStartDate               *string
	TripScheduleRelationship    *string
	VehicleID                   *string
	VehicleLabel                *string
	VehicleLicensePlate         *string
	VehicleWheelchairAccessible *string
	Latitude                    *float64
	Longitude                   *float64
	Bearing                     *float64
	Odometer                    *float64
	Speed                       *float64
	CurrentStopSequence         *int64
	StopID                      *string
	CurrentStatus               *string
	Timestamp                   *int64
	CongestionLevel             *string
	LastUpdated                 time.Time
}

// OperationDayTrip is one (trip, stop) pair of the nominal timetable,
// ordered by trip and stop sequence. With the stop sequence restricted
// to the first stop it seeds the route start time lookup.
type OperationDayTrip struct {
	TripID        string
	RouteID       string
	StopSequence  uint32
	StopID        string
	DepartureTime string
}

// MonitorTrip is one row of the monitor view: a nominal departure
// joined against the realtime row currently held for it.
type MonitorTrip struct {
	OperationDay       string
	AgencyID           string
	RouteID            string
	RouteShortName     string
	TripID             string
	TripHeadsign       string
	DirectionID        int8
	StartStopID        string
	StartStopName      string
	StartTime          string
	RealtimeAvailable  bool
	RealtimeLastUpdate *time.Time
}

// Store is the gateway to the analytical database. The realtime server
// holds two of these on the same database: a reader for HTTP handlers
// and a writer owned by the flush loop.
type Store interface {
	// Static write path, used by the loader.
	WriteAgency(a *Agency) error
	WriteCalendar(c *Calendar) error
	WriteCalendarDate(cd *CalendarDate) error
	WriteFeedInfo(fi *FeedInfo) error
	WriteRoute(r *Route) error
	WriteShape(s *Shape) error
	WriteStopTime(st *StopTime) error
	WriteStop(s *Stop) error
	UpsertStop(s *Stop) error
	WriteTransfer(t *Transfer) error
	WriteTrip(t *Trip) error
	BeginTrans() error
	CommitTrans() error

	// Nominal read path.
	StopIDs() ([]string, error)
	RouteIDs() ([]string, error)
	ActiveServices(date string) ([]string, error)
	OperationDayTrips(date string, allStops bool) ([]*OperationDayTrip, error)
	MonitorTrips(date string) ([]*MonitorTrip, error)

	// Realtime write path, driven by the flush loop.
	ClearRealtime() error
	AgeOutRealtime(before time.Time) error
	DeleteTripUpdate(id string) error
	InsertTripUpdate(tu *TripUpdate, stus []*StopTimeUpdate) error
	DeleteServiceAlert(id string) error
	InsertServiceAlert(sa *ServiceAlert, periods []*AlertActivePeriod, entities []*AlertInformedEntity) error
	DeleteVehiclePosition(id string) error
	InsertVehiclePosition(vp *VehiclePosition) error

	// Realtime read path, serving the feed endpoints.
	TripUpdates() ([]*TripUpdate, []*StopTimeUpdate, error)
	ServiceAlerts() ([]*ServiceAlert, []*AlertActivePeriod, []*AlertInformedEntity, error)
	VehiclePositions() ([]*VehiclePosition, error)

	// Maintenance, used by the CLI.
	RemoveAgencies(pattern string) error
	RemoveRoutes(pattern string) error
	RemoveTrips(pattern string) error
	RemoveDependentObjects() error
	TableNames() []string
	RowCount(table string) (int64, error)
	DumpTable(table string) ([]string, [][]string, error)
	InsertRows(table string, columns []string, rows [][]string) error
	Exec(stmt string) error

	Close() error
}
