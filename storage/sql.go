package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on database/sql. Statements are written
// with ? placeholders and rebound to $n for postgres, so sqlite and
// postgres share one implementation.
type SQLStore struct {
	db     *sql.DB
	driver string
	tx     *sql.Tx
}

// Open opens a store connection. An empty driver selects sqlite. The
// sqlite pool is capped at a single connection so an in-memory DSN
// behaves like one database.
func Open(driver string, dsn string, opts Options) (*SQLStore, error) {
	var driverName string
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		driverName = "sqlite3"
	case DriverPostgres:
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unknown driver: %s", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driver: driver}

	if !opts.ReadOnly {
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("creating tables: %w", err)
			}
		}
	}

	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// bind rewrites ? placeholders to $1..$n for postgres.
func (s *SQLStore) bind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *SQLStore) exec(query string, args ...interface{}) error {
	var err error
	if s.tx != nil {
		_, err = s.tx.Exec(s.bind(query), args...)
	} else {
		_, err = s.db.Exec(s.bind(query), args...)
	}
	return err
}

func (s *SQLStore) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.bind(query), args...)
}

// BeginTrans opens a transaction for bulk loading. Write calls issued
// before CommitTrans run inside it.
func (s *SQLStore) BeginTrans() error {
	if s.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *SQLStore) CommitTrans() error {
	if s.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) WriteAgency(a *Agency) error {
	return s.exec(`
INSERT INTO agency (agency_id, agency_name, agency_url, agency_timezone, agency_lang, agency_phone)
VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.URL, a.Timezone, a.Lang, a.Phone)
}

func (s *SQLStore) WriteCalendar(c *Calendar) error {
	return s.exec(`
INSERT INTO calendar (service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ServiceID,
		c.Weekday>>time.Monday&1,
		c.Weekday>>time.Tuesday&1,
		c.Weekday>>time.Wednesday&1,
		c.Weekday>>time.Thursday&1,
		c.Weekday>>time.Friday&1,
		c.Weekday>>time.Saturday&1,
		c.Weekday>>time.Sunday&1,
		c.StartDate, c.EndDate)
}

func (s *SQLStore) WriteCalendarDate(cd *CalendarDate) error {
	return s.exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID, cd.Date, cd.ExceptionType)
}

func (s *SQLStore) WriteFeedInfo(fi *FeedInfo) error {
	return s.exec(`
INSERT INTO feed_info (feed_publisher_name, feed_publisher_url, feed_lang, feed_start_date, feed_end_date, feed_version)
VALUES (?, ?, ?, ?, ?, ?)`,
		fi.PublisherName, fi.PublisherURL, fi.Lang, fi.StartDate, fi.EndDate, fi.Version)
}

func (s *SQLStore) WriteRoute(r *Route) error {
	return s.exec(`
INSERT INTO routes (route_id, agency_id, route_short_name, route_long_name, route_desc, route_type, route_url, route_color, route_text_color)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, r.Type, r.URL, r.Color, r.TextColor)
}

func (s *SQLStore) WriteShape(sh *Shape) error {
	return s.exec(`
INSERT INTO shapes (shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence, shape_dist_traveled)
VALUES (?, ?, ?, ?, ?)`,
		sh.ID, sh.Lat, sh.Lon, sh.Sequence, sh.DistTraveled)
}

func (s *SQLStore) WriteStopTime(st *StopTime) error {
	return s.exec(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time, stop_headsign)
VALUES (?, ?, ?, ?, ?, ?)`,
		st.TripID, st.StopID, st.StopSequence, st.Arrival, st.Departure, st.Headsign)
}

func (s *SQLStore) WriteStop(st *Stop) error {
	return s.exec(`
INSERT INTO stops (stop_id, stop_code, stop_name, stop_desc, stop_lat, stop_lon, stop_url, location_type, parent_station, platform_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Code, st.Name, st.Desc, st.Lat, st.Lon, st.URL, st.LocationType, st.ParentStation, st.PlatformCode)
}

func (s *SQLStore) UpsertStop(st *Stop) error {
	return s.exec(`
INSERT INTO stops (stop_id, stop_code, stop_name, stop_desc, stop_lat, stop_lon, stop_url, location_type, parent_station, platform_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (stop_id) DO UPDATE SET
	stop_code = excluded.stop_code,
	stop_name = excluded.stop_name,
	stop_desc = excluded.stop_desc,
	stop_lat = excluded.stop_lat,
	stop_lon = excluded.stop_lon,
	stop_url = excluded.stop_url,
	location_type = excluded.location_type,
	parent_station = excluded.parent_station,
	platform_code = excluded.platform_code`,
		st.ID, st.Code, st.Name, st.Desc, st.Lat, st.Lon, st.URL, st.LocationType, st.ParentStation, st.PlatformCode)
}

func (s *SQLStore) WriteTransfer(t *Transfer) error {
	return s.exec(`
INSERT INTO transfers (from_stop_id, to_stop_id, from_route_id, to_route_id, from_trip_id, to_trip_id, transfer_type, min_transfer_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FromStopID, t.ToStopID, t.FromRouteID, t.ToRouteID, t.FromTripID, t.ToTripID, t.Type, t.MinTransferTime)
}

func (s *SQLStore) WriteTrip(t *Trip) error {
	return s.exec(`
INSERT INTO trips (trip_id, route_id, service_id, trip_headsign, trip_short_name, direction_id, block_id, shape_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName, t.DirectionID, t.BlockID, t.ShapeID)
}

func (s *SQLStore) StopIDs() ([]string, error) {
	return s.idColumn("stops", "stop_id")
}

func (s *SQLStore) RouteIDs() ([]string, error) {
	return s.idColumn("routes", "route_id")
}

func (s *SQLStore) idColumn(table, column string) ([]string, error) {
	rows, err := s.db.Query(`SELECT ` + column + ` FROM ` + table)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *SQLStore) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	var weekday string
	switch parsedDate.Weekday() {
	case time.Monday:
		weekday = "monday"
	case time.Tuesday:
		weekday = "tuesday"
	case time.Wednesday:
		weekday = "wednesday"
	case time.Thursday:
		weekday = "thursday"
	case time.Friday:
		weekday = "friday"
	case time.Saturday:
		weekday = "saturday"
	case time.Sunday:
		weekday = "sunday"
	}

	rows, err := s.query(`
WITH
Exceptions AS (
	SELECT service_id, exception_type
	FROM calendar_dates
	WHERE date = ?
),
Regular AS (
	SELECT service_id
	FROM calendar
	WHERE `+weekday+` = 1 AND
	      start_date <= ? AND
	      end_date >= ?
)
SELECT service_id
FROM Regular
WHERE service_id NOT IN (
	SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id
FROM Exceptions
WHERE exception_type = 1
`, date, date, date)
	if err != nil {
		return nil, fmt.Errorf("querying for active services: %w", err)
	}
	defer rows.Close()

	activeServices := []string{}
	for rows.Next() {
		var serviceID string
		err = rows.Scan(&serviceID)
		if err != nil {
			return nil, fmt.Errorf("scanning active services: %w", err)
		}
		activeServices = append(activeServices, serviceID)
	}

	return activeServices, nil
}

func (s *SQLStore) OperationDayTrips(date string, allStops bool) ([]*OperationDayTrip, error) {
	services, err := s.ActiveServices(date)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return []*OperationDayTrip{}, nil
	}

	query := `
SELECT
	trips.trip_id,
	trips.route_id,
	stop_times.stop_sequence,
	stop_times.stop_id,
	stop_times.departure_time
FROM trips
INNER JOIN stop_times ON stop_times.trip_id = trips.trip_id
WHERE trips.service_id IN (` + placeholders(len(services)) + `)`
	if !allStops {
		query += `
AND stop_times.stop_sequence = 1`
	}
	query += `
ORDER BY trips.trip_id, stop_times.stop_sequence`

	rows, err := s.query(query, stringArgs(services)...)
	if err != nil {
		return nil, fmt.Errorf("querying for operation day trips: %w", err)
	}
	defer rows.Close()

	trips := []*OperationDayTrip{}
	for rows.Next() {
		odt := &OperationDayTrip{}
		err = rows.Scan(&odt.TripID, &odt.RouteID, &odt.StopSequence, &odt.StopID, &odt.DepartureTime)
		if err != nil {
			return nil, fmt.Errorf("scanning operation day trips: %w", err)
		}
		trips = append(trips, odt)
	}

	return trips, nil
}

func (s *SQLStore) MonitorTrips(date string) ([]*MonitorTrip, error) {
	services, err := s.ActiveServices(date)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return []*MonitorTrip{}, nil
	}

	rows, err := s.query(`
SELECT
	routes.agency_id,
	routes.route_id,
	routes.route_short_name,
	trips.trip_id,
	trips.trip_headsign,
	trips.direction_id,
	stop_times.stop_id,
	stops.stop_name,
	stop_times.departure_time,
	realtime_trip_updates.trip_update_id,
	realtime_trip_updates.last_updated_timestamp
FROM trips
INNER JOIN routes ON routes.route_id = trips.route_id
INNER JOIN stop_times ON stop_times.trip_id = trips.trip_id AND stop_times.stop_sequence = 1
INNER JOIN stops ON stops.stop_id = stop_times.stop_id
LEFT JOIN realtime_trip_updates ON realtime_trip_updates.trip_id = trips.trip_id
WHERE trips.service_id IN (`+placeholders(len(services))+`)
ORDER BY stop_times.departure_time, routes.route_short_name, trips.trip_id`, stringArgs(services)...)
	if err != nil {
		return nil, fmt.Errorf("querying for monitor trips: %w", err)
	}
	defer rows.Close()

	trips := []*MonitorTrip{}
	for rows.Next() {
		mt := &MonitorTrip{OperationDay: date}
		var updateID sql.NullString
		err = rows.Scan(
			&mt.AgencyID,
			&mt.RouteID,
			&mt.RouteShortName,
			&mt.TripID,
			&mt.TripHeadsign,
			&mt.DirectionID,
			&mt.StartStopID,
			&mt.StartStopName,
			&mt.StartTime,
			&updateID,
			&mt.RealtimeLastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning monitor trips: %w", err)
		}
		mt.RealtimeAvailable = updateID.Valid
		trips = append(trips, mt)
	}

	return trips, nil
}

func (s *SQLStore) ClearRealtime() error {
	for _, table := range realtimeTables {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLStore) AgeOutRealtime(before time.Time) error {
	for _, table := range realtimeTables {
		err := s.exec(`DELETE FROM `+table+` WHERE last_updated_timestamp < ?`, before)
		if err != nil {
			return fmt.Errorf("aging out %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLStore) DeleteTripUpdate(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteTripUpdateTx(tx, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) deleteTripUpdateTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(s.bind(`DELETE FROM realtime_trip_updates WHERE trip_update_id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting trip update: %w", err)
	}
	_, err = tx.Exec(s.bind(`DELETE FROM realtime_trip_stop_time_updates WHERE trip_update_id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting stop time updates: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertTripUpdate(tu *TripUpdate, stus []*StopTimeUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteTripUpdateTx(tx, tu.ID); err != nil {
		return err
	}

	_, err = tx.Exec(s.bind(`
INSERT INTO realtime_trip_updates (
	trip_update_id, trip_id, trip_route_id, trip_direction_id, trip_start_time,
	trip_start_date, trip_schedule_relationship, vehicle_id, vehicle_label,
	vehicle_license_plate, vehicle_wheelchair_accessible, timestamp,
	last_updated_timestamp
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		tu.ID, tu.TripID, tu.TripRouteID, tu.TripDirectionID, tu.TripStartTime,
		tu.TripStartDate, tu.TripScheduleRelationship, tu.VehicleID, tu.VehicleLabel,
		tu.VehicleLicensePlate, tu.VehicleWheelchairAccessible, tu.Timestamp,
		tu.LastUpdated)
	if err != nil {
		return fmt.Errorf("inserting trip update: %w", err)
	}

	for _, stu := range stus {
		_, err = tx.Exec(s.bind(`
INSERT INTO realtime_trip_stop_time_updates (
	trip_update_id, stop_sequence, stop_id, arrival_time, arrival_delay,
	arrival_uncertainty, departure_time, departure_delay, departure_uncertainty,
	schedule_relationship, last_updated_timestamp
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			stu.TripUpdateID, stu.StopSequence, stu.StopID, stu.ArrivalTime, stu.ArrivalDelay,
			stu.ArrivalUncertainty, stu.DepartureTime, stu.DepartureDelay, stu.DepartureUncertainty,
			stu.ScheduleRelationship, stu.LastUpdated)
		if err != nil {
			return fmt.Errorf("inserting stop time update: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) DeleteServiceAlert(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteServiceAlertTx(tx, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) deleteServiceAlertTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(s.bind(`DELETE FROM realtime_service_alerts WHERE service_alert_id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting service alert: %w", err)
	}
	_, err = tx.Exec(s.bind(`DELETE FROM realtime_alert_active_periods WHERE service_alert_id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting alert active periods: %w", err)
	}
	_, err = tx.Exec(s.bind(`DELETE FROM realtime_alert_informed_entities WHERE service_alert_id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting alert informed entities: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertServiceAlert(sa *ServiceAlert, periods []*AlertActivePeriod, entities []*AlertInformedEntity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteServiceAlertTx(tx, sa.ID); err != nil {
		return err
	}

	_, err = tx.Exec(s.bind(`
INSERT INTO realtime_service_alerts (
	service_alert_id, cause, effect, url, header_text, description_text,
	tts_header_text, tts_description_text, severity_level, last_updated_timestamp
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sa.ID, sa.Cause, sa.Effect, sa.URL, sa.HeaderText, sa.DescriptionText,
		sa.TTSHeaderText, sa.TTSDescriptionText, sa.SeverityLevel, sa.LastUpdated)
	if err != nil {
		return fmt.Errorf("inserting service alert: %w", err)
	}

	for _, p := range periods {
		_, err = tx.Exec(s.bind(`
INSERT INTO realtime_alert_active_periods (service_alert_id, start_timestamp, end_timestamp, last_updated_timestamp)
VALUES (?, ?, ?, ?)`),
			p.AlertID, p.Start, p.End, p.LastUpdated)
		if err != nil {
			return fmt.Errorf("inserting alert active period: %w", err)
		}
	}

	for _, e := range entities {
		_, err = tx.Exec(s.bind(`
INSERT INTO realtime_alert_informed_entities (
	service_alert_id, agency_id, route_id, route_type, trip_id, trip_route_id,
	trip_direction_id, trip_start_time, trip_start_date,
	trip_schedule_relationship, stop_id, last_updated_timestamp
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.AlertID, e.AgencyID, e.RouteID, e.RouteType, e.TripID, e.TripRouteID,
			e.TripDirectionID, e.TripStartTime, e.TripStartDate,
			e.TripScheduleRelationship, e.StopID, e.LastUpdated)
		if err != nil {
			return fmt.Errorf("inserting alert informed entity: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) DeleteVehiclePosition(id string) error {
	err := s.exec(`DELETE FROM realtime_vehicle_positions WHERE vehicle_position_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting vehicle position: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertVehiclePosition(vp *VehiclePosition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(s.bind(`DELETE FROM realtime_vehicle_positions WHERE vehicle_position_id = ?`), vp.ID)
	if err != nil {
		return fmt.Errorf("deleting vehicle position: %w", err)
	}

	_, err = tx.Exec(s.bind(`
INSERT INTO realtime_vehicle_positions (
	vehicle_position_id, trip_id, trip_route_id, trip_direction_id,
	trip_start_time, trip_start_date, trip_schedule_relationship, vehicle_id,
	vehicle_label, vehicle_license_plate, vehicle_wheelchair_accessible,
	position_latitude, position_longitude, position_bearing, position_odometer,
	position_speed, current_stop_sequence, stop_id, current_status, timestamp,
	congestion_level, last_updated_timestamp
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		vp.ID, vp.TripID, vp.TripRouteID, vp.TripDirectionID,
		vp.TripStartTime, vp.TripStartDate, vp.TripScheduleRelationship, vp.VehicleID,
		vp.VehicleLabel, vp.VehicleLicensePlate, vp.VehicleWheelchairAccessible,
		vp.Latitude, vp.Longitude, vp.Bearing, vp.Odometer,
		vp.Speed, vp.CurrentStopSequence, vp.StopID, vp.CurrentStatus, vp.Timestamp,
		vp.CongestionLevel, vp.LastUpdated)
	if err != nil {
		return fmt.Errorf("inserting vehicle position: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) TripUpdates() ([]*TripUpdate, []*StopTimeUpdate, error) {
	rows, err := s.query(`
SELECT
	trip_update_id, trip_id, trip_route_id, trip_direction_id, trip_start_time,
	trip_start_date, trip_schedule_relationship, vehicle_id, vehicle_label,
	vehicle_license_plate, vehicle_wheelchair_accessible, timestamp,
	last_updated_timestamp
FROM realtime_trip_updates
ORDER BY trip_update_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying for trip updates: %w", err)
	}
	defer rows.Close()

	updates := []*TripUpdate{}
	for rows.Next() {
		tu := &TripUpdate{}
		err = rows.Scan(
			&tu.ID, &tu.TripID, &tu.TripRouteID, &tu.TripDirectionID, &tu.TripStartTime,
			&tu.TripStartDate, &tu.TripScheduleRelationship, &tu.VehicleID, &tu.VehicleLabel,
			&tu.VehicleLicensePlate, &tu.VehicleWheelchairAccessible, &tu.Timestamp,
			&tu.LastUpdated)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning trip updates: %w", err)
		}
		updates = append(updates, tu)
	}
	rows.Close()

	rows, err = s.query(`
SELECT
	trip_update_id, stop_sequence, stop_id, arrival_time, arrival_delay,
	arrival_uncertainty, departure_time, departure_delay, departure_uncertainty,
	schedule_relationship, last_updated_timestamp
FROM realtime_trip_stop_time_updates
ORDER BY trip_update_id, stop_sequence`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying for stop time updates: %w", err)
	}
	defer rows.Close()

	stus := []*StopTimeUpdate{}
	for rows.Next() {
		stu := &StopTimeUpdate{}
		err = rows.Scan(
			&stu.TripUpdateID, &stu.StopSequence, &stu.StopID, &stu.ArrivalTime, &stu.ArrivalDelay,
			&stu.ArrivalUncertainty, &stu.DepartureTime, &stu.DepartureDelay, &stu.DepartureUncertainty,
			&stu.ScheduleRelationship, &stu.LastUpdated)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning stop time updates: %w", err)
		}
		stus = append(stus, stu)
	}

	return updates, stus, nil
}

func (s *SQLStore) ServiceAlerts() ([]*ServiceAlert, []*AlertActivePeriod, []*AlertInformedEntity, error) {
	rows, err := s.query(`
SELECT
	service_alert_id, cause, effect, url, header_text, description_text,
	tts_header_text, tts_description_text, severity_level, last_updated_timestamp
FROM realtime_service_alerts
ORDER BY service_alert_id`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("querying for service alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*ServiceAlert{}
	for rows.Next() {
		sa := &ServiceAlert{}
		err = rows.Scan(
			&sa.ID, &sa.Cause, &sa.Effect, &sa.URL, &sa.HeaderText, &sa.DescriptionText,
			&sa.TTSHeaderText, &sa.TTSDescriptionText, &sa.SeverityLevel, &sa.LastUpdated)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("scanning service alerts: %w", err)
		}
		alerts = append(alerts, sa)
	}
	rows.Close()

	rows, err = s.query(`
SELECT service_alert_id, start_timestamp, end_timestamp, last_updated_timestamp
FROM realtime_alert_active_periods
ORDER BY service_alert_id, start_timestamp`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("querying for alert active periods: %w", err)
	}
	defer rows.Close()

	periods := []*AlertActivePeriod{}
	for rows.Next() {
		p := &AlertActivePeriod{}
		err = rows.Scan(&p.AlertID, &p.Start, &p.End, &p.LastUpdated)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("scanning alert active periods: %w", err)
		}
		periods = append(periods, p)
	}
	rows.Close()

	rows, err = s.query(`
SELECT
	service_alert_id, agency_id, route_id, route_type, trip_id, trip_route_id,
	trip_direction_id, trip_start_time, trip_start_date,
	trip_schedule_relationship, stop_id, last_updated_timestamp
FROM realtime_alert_informed_entities
ORDER BY service_alert_id`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("querying for alert informed entities: %w", err)
	}
	defer rows.Close()

	entities := []*AlertInformedEntity{}
	for rows.Next() {
		e := &AlertInformedEntity{}
		err = rows.Scan(
			&e.AlertID, &e.AgencyID, &e.RouteID, &e.RouteType, &e.TripID, &e.TripRouteID,
			&e.TripDirectionID, &e.TripStartTime, &e.TripStartDate,
			&e.TripScheduleRelationship, &e.StopID, &e.LastUpdated)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("scanning alert informed entities: %w", err)
		}
		entities = append(entities, e)
	}

	return alerts, periods, entities, nil
}

func (s *SQLStore) VehiclePositions() ([]*VehiclePosition, error) {
	rows, err := s.query(`
SELECT
	vehicle_position_id, trip_id, trip_route_id, trip_direction_id,
	trip_start_time, trip_start_date, trip_schedule_relationship, vehicle_id,
	vehicle_label, vehicle_license_plate, vehicle_wheelchair_accessible,
	position_latitude, position_longitude, position_bearing, position_odometer,
	position_speed, current_stop_sequence, stop_id, current_status, timestamp,
	congestion_level, last_updated_timestamp
FROM realtime_vehicle_positions
ORDER BY vehicle_position_id`)
	if err != nil {
		return nil, fmt.Errorf("querying for vehicle positions: %w", err)
	}
	defer rows.Close()

	positions := []*VehiclePosition{}
	for rows.Next() {
		vp := &VehiclePosition{}
		err = rows.Scan(
			&vp.ID, &vp.TripID, &vp.TripRouteID, &vp.TripDirectionID,
			&vp.TripStartTime, &vp.TripStartDate, &vp.TripScheduleRelationship, &vp.VehicleID,
			&vp.VehicleLabel, &vp.VehicleLicensePlate, &vp.VehicleWheelchairAccessible,
			&vp.Latitude, &vp.Longitude, &vp.Bearing, &vp.Odometer,
			&vp.Speed, &vp.CurrentStopSequence, &vp.StopID, &vp.CurrentStatus, &vp.Timestamp,
			&vp.CongestionLevel, &vp.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("scanning vehicle positions: %w", err)
		}
		positions = append(positions, vp)
	}

	return positions, nil
}

func (s *SQLStore) RemoveAgencies(pattern string) error {
	err := s.exec(`DELETE FROM agency WHERE agency_id LIKE ?`, pattern)
	if err != nil {
		return fmt.Errorf("removing agencies: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveRoutes(pattern string) error {
	err := s.exec(`DELETE FROM routes WHERE route_id LIKE ?`, pattern)
	if err != nil {
		return fmt.Errorf("removing routes: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveTrips(pattern string) error {
	err := s.exec(`DELETE FROM trips WHERE trip_id LIKE ?`, pattern)
	if err != nil {
		return fmt.Errorf("removing trips: %w", err)
	}
	return nil
}

// RemoveDependentObjects deletes every row whose parent is gone, in
// dependency order so each pass sees the previous one's result.
func (s *SQLStore) RemoveDependentObjects() error {
	stmts := []string{
		`DELETE FROM routes WHERE agency_id NOT IN (SELECT agency_id FROM agency)`,
		`DELETE FROM trips WHERE route_id NOT IN (SELECT route_id FROM routes)`,
		`DELETE FROM stop_times WHERE trip_id NOT IN (SELECT trip_id FROM trips)`,
		`DELETE FROM stops WHERE location_type = 0 AND stop_id NOT IN (SELECT stop_id FROM stop_times)`,
		`DELETE FROM stops WHERE location_type = 1 AND stop_id NOT IN (SELECT parent_station FROM stops WHERE location_type = 0)`,
		`DELETE FROM shapes WHERE shape_id NOT IN (SELECT shape_id FROM trips)`,
		`DELETE FROM transfers WHERE from_stop_id NOT IN (SELECT stop_id FROM stops) OR to_stop_id NOT IN (SELECT stop_id FROM stops)`,
		`DELETE FROM calendar WHERE service_id NOT IN (SELECT service_id FROM trips)`,
		`DELETE FROM calendar_dates WHERE service_id NOT IN (SELECT service_id FROM trips)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("removing dependent objects: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) TableNames() []string {
	names := make([]string, len(staticTables))
	copy(names, staticTables)
	return names
}

func (s *SQLStore) RowCount(table string) (int64, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("unknown table: %s", table)
	}
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", table, err)
	}
	return count, nil
}

// DumpTable returns every row of a table with values rendered as
// strings, NULLs as empty strings. Used by CSV export and merge.
func (s *SQLStore) DumpTable(table string) ([]string, [][]string, error) {
	if !knownTable(table) {
		return nil, nil, fmt.Errorf("unknown table: %s", table)
	}

	rows, err := s.db.Query(`SELECT * FROM ` + table)
	if err != nil {
		return nil, nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s columns: %w", table, err)
	}

	records := [][]string{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		for i := range values {
			values[i] = new(sql.NullString)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, nil, fmt.Errorf("scanning %s rows: %w", table, err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			ns := v.(*sql.NullString)
			if ns.Valid {
				record[i] = ns.String
			}
		}
		records = append(records, record)
	}

	return columns, records, nil
}

func (s *SQLStore) InsertRows(table string, columns []string, rows [][]string) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown table: %s", table)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.bind(`
INSERT INTO ` + table + ` (` + strings.Join(columns, ", ") + `)
VALUES (` + placeholders(len(columns)) + `)`)

	for _, row := range rows {
		args := make([]interface{}, len(row))
		for i, v := range row {
			args[i] = v
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Exec(stmt string) error {
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func knownTable(name string) bool {
	for _, t := range staticTables {
		if t == name {
			return true
		}
	}
	for _, t := range realtimeTables {
		if t == name {
			return true
		}
	}
	return false
}
