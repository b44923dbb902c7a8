package testutil

// Helpers and fixtures for tests.

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitlake/transitlake/parse"
	"github.com/transitlake/transitlake/storage"
)

// OpenStore opens an in-memory sqlite store with the schema in place.
func OpenStore(t testing.TB) *storage.SQLStore {
	s, err := storage.Open(storage.DriverSQLite, ":memory:", storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// BuildZip bundles the given files, each a list of lines.
func BuildZip(t testing.TB, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// LoadStatic fills in dummy data for missing required files and loads
// the bundle into the store.
func LoadStatic(t testing.TB, store storage.Store, files map[string][]string) {
	if files["agency.txt"] == nil {
		files["agency.txt"] = []string{
			"agency_id,agency_name,agency_url,agency_timezone",
			"A1,Agency,http://example.com,UTC",
		}
	}
	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		files["calendar.txt"] = []string{
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEK,1,1,1,1,1,1,1,20200101,20301231",
		}
	}
	if files["routes.txt"] == nil {
		files["routes.txt"] = []string{"route_id,route_short_name,route_type", "R1,1,3"}
	}
	if files["trips.txt"] == nil {
		files["trips.txt"] = []string{"trip_id,route_id,service_id", "TRIP_1,R1,WEEK"}
	}
	if files["stops.txt"] == nil {
		files["stops.txt"] = []string{"stop_id,stop_name,stop_lat,stop_lon", "STOP_A,Stop A,1.0,2.0"}
	}
	if files["stop_times.txt"] == nil {
		files["stop_times.txt"] = []string{
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"TRIP_1,STOP_A,1,08:00:00,08:00:00",
		}
	}

	require.NoError(t, parse.LoadStatic(store, BuildZip(t, files)))
}

// LoadFixture loads the timetable shared by index, matcher and server
// tests: route R1 with trips TRIP_1 (stops A,B,C from 08:00) and
// TRIP_2 (stops A,C from 09:00), route R9 with TRIP_3 (stop D).
func LoadFixture(t testing.TB, store storage.Store) {
	LoadStatic(t, store, map[string][]string{
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_type",
			"R1,A1,1,3",
			"R9,A1,9,3",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"STOP_A,Stop A,1.0,2.0",
			"STOP_B,Stop B,1.1,2.1",
			"STOP_C,Stop C,1.2,2.2",
			"STOP_D,Stop D,1.3,2.3",
		},
		"trips.txt": {
			"trip_id,route_id,service_id,trip_headsign,direction_id",
			"TRIP_1,R1,WEEK,City,0",
			"TRIP_2,R1,WEEK,City,0",
			"TRIP_3,R9,WEEK,Harbor,1",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"TRIP_1,STOP_A,1,08:00:00,08:00:00",
			"TRIP_1,STOP_B,2,08:10:00,08:10:00",
			"TRIP_1,STOP_C,3,08:20:00,08:20:00",
			"TRIP_2,STOP_A,1,09:00:00,09:00:00",
			"TRIP_2,STOP_C,2,09:15:00,09:15:00",
			"TRIP_3,STOP_D,1,08:00:00,08:00:00",
		},
	})
}
