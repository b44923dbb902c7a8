package storage

// Table DDL, executed on every writable Open. Static tables carry the
// GTFS column names so LIKE-based maintenance and CSV export work on
// the wire-format names. Realtime tables keep one flattened row per
// protobuf entity plus child tables for repeated fields.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS agency (
		agency_id TEXT PRIMARY KEY,
		agency_name TEXT,
		agency_url TEXT,
		agency_timezone TEXT,
		agency_lang TEXT,
		agency_phone TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS calendar (
		service_id TEXT PRIMARY KEY,
		monday INTEGER,
		tuesday INTEGER,
		wednesday INTEGER,
		thursday INTEGER,
		friday INTEGER,
		saturday INTEGER,
		sunday INTEGER,
		start_date TEXT,
		end_date TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS calendar_dates (
		service_id TEXT,
		date TEXT,
		exception_type INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS feed_info (
		feed_publisher_name TEXT,
		feed_publisher_url TEXT,
		feed_lang TEXT,
		feed_start_date TEXT,
		feed_end_date TEXT,
		feed_version TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		agency_id TEXT,
		route_short_name TEXT,
		route_long_name TEXT,
		route_desc TEXT,
		route_type INTEGER,
		route_url TEXT,
		route_color TEXT,
		route_text_color TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS shapes (
		shape_id TEXT,
		shape_pt_lat REAL,
		shape_pt_lon REAL,
		shape_pt_sequence INTEGER,
		shape_dist_traveled REAL
	)`,

	`CREATE TABLE IF NOT EXISTS stop_times (
		trip_id TEXT,
		stop_id TEXT,
		stop_sequence INTEGER,
		arrival_time TEXT,
		departure_time TEXT,
		stop_headsign TEXT,
		PRIMARY KEY (trip_id, stop_sequence)
	)`,

	`CREATE TABLE IF NOT EXISTS stops (
		stop_id TEXT PRIMARY KEY,
		stop_code TEXT,
		stop_name TEXT,
		stop_desc TEXT,
		stop_lat REAL,
		stop_lon REAL,
		stop_url TEXT,
		location_type INTEGER,
		parent_station TEXT,
		platform_code TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS transfers (
		from_stop_id TEXT,
		to_stop_id TEXT,
		from_route_id TEXT,
		to_route_id TEXT,
		from_trip_id TEXT,
		to_trip_id TEXT,
		transfer_type INTEGER,
		min_transfer_time INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS trips (
		trip_id TEXT PRIMARY KEY,
		route_id TEXT,
		service_id TEXT,
		trip_headsign TEXT,
		trip_short_name TEXT,
		direction_id INTEGER,
		block_id TEXT,
		shape_id TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_trip_updates (
		trip_update_id TEXT PRIMARY KEY,
		trip_id TEXT,
		trip_route_id TEXT,
		trip_direction_id TEXT,
		trip_start_time TEXT,
		trip_start_date TEXT,
		trip_schedule_relationship TEXT,
		vehicle_id TEXT,
		vehicle_label TEXT,
		vehicle_license_plate TEXT,
		vehicle_wheelchair_accessible TEXT,
		timestamp BIGINT,
		last_updated_timestamp TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_trip_stop_time_updates (
		trip_update_id TEXT,
		stop_sequence BIGINT,
		stop_id TEXT,
		arrival_time BIGINT,
		arrival_delay BIGINT,
		arrival_uncertainty BIGINT,
		departure_time BIGINT,
		departure_delay BIGINT,
		departure_uncertainty BIGINT,
		schedule_relationship TEXT,
		last_updated_timestamp TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_service_alerts (
		service_alert_id TEXT PRIMARY KEY,
		cause TEXT,
		effect TEXT,
		url TEXT,
		header_text TEXT,
		description_text TEXT,
		tts_header_text TEXT,
		tts_description_text TEXT,
		severity_level TEXT,
		last_updated_timestamp TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_alert_active_periods (
		service_alert_id TEXT,
		start_timestamp BIGINT,
		end_timestamp BIGINT,
		last_updated_timestamp TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_alert_informed_entities (
		service_alert_id TEXT,
		agency_id TEXT,
		route_id TEXT,
		route_type BIGINT,
		trip_id TEXT,
		trip_route_id TEXT,
		trip_direction_id TEXT,
		trip_start_time TEXT,
		trip_start_date TEXT,
		trip_schedule_relationship TEXT,
		stop_id TEXT,
		last_updated_timestamp TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS realtime_vehicle_positions (
		vehicle_position_id TEXT PRIMARY KEY,
		trip_id TEXT,
		trip_route_id TEXT,
		trip_direction_id TEXT,
		trip_start_time TEXT,
		trip_start_date TEXT,
		trip_schedule_relationship TEXT,
		vehicle_id TEXT,
		vehicle_label TEXT,
		vehicle_license_plate TEXT,
		vehicle_wheelchair_accessible TEXT,
		position_latitude REAL,
		position_longitude REAL,
		position_bearing REAL,
		position_odometer REAL,
		position_speed REAL,
		current_stop_sequence BIGINT,
		stop_id TEXT,
		current_status TEXT,
		timestamp BIGINT,
		congestion_level TEXT,
		last_updated_timestamp TIMESTAMP
	)`,
}

// staticTables lists the CSV-backed tables in load and export order.
var staticTables = []string{
	"agency",
	"calendar",
	"calendar_dates",
	"feed_info",
	"routes",
	"shapes",
	"stop_times",
	"stops",
	"transfers",
	"trips",
}

// realtimeTables lists every table cleared on realtime startup, child
// tables last so a partial failure never orphans children.
var realtimeTables = []string{
	"realtime_trip_updates",
	"realtime_trip_stop_time_updates",
	"realtime_service_alerts",
	"realtime_alert_active_periods",
	"realtime_alert_informed_entities",
	"realtime_vehicle_positions",
}
