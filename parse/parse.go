package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/transitlake/transitlake/storage"
)

// LoadStatic reads a GTFS static ZIP bundle into the store. Files not
// listed here and columns without a csv tag are dropped.
func LoadStatic(store storage.Store, buf []byte) error {
	file := map[string]io.ReadCloser{
		"agency.txt":         nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
		"feed_info.txt":      nil,
		"routes.txt":         nil,
		"shapes.txt":         nil,
		"stop_times.txt":     nil,
		"stops.txt":          nil,
		"transfers.txt":      nil,
		"trips.txt":          nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	for _, required := range []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return fmt.Errorf("missing %s", required)
		}
	}
	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		return fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	agency, err := ParseAgency(store, file["agency.txt"])
	if err != nil {
		return fmt.Errorf("parsing agency.txt: %w", err)
	}

	routes, err := ParseRoutes(store, file["routes.txt"], agency)
	if err != nil {
		return fmt.Errorf("parsing routes.txt: %w", err)
	}

	services := map[string]bool{}
	if file["calendar.txt"] != nil {
		services, err = ParseCalendar(store, file["calendar.txt"])
		if err != nil {
			return fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	if file["calendar_dates.txt"] != nil {
		cdServices, err := ParseCalendarDates(store, file["calendar_dates.txt"])
		if err != nil {
			return fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		for serviceID := range cdServices {
			services[serviceID] = true
		}
	}

	if file["feed_info.txt"] != nil {
		if err := ParseFeedInfo(store, file["feed_info.txt"]); err != nil {
			return fmt.Errorf("parsing feed_info.txt: %w", err)
		}
	}

	if err := store.BeginTrans(); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	trips, err := ParseTrips(store, file["trips.txt"], routes, services)
	if err != nil {
		return fmt.Errorf("parsing trips.txt: %w", err)
	}

	stops, err := ParseStops(store, file["stops.txt"])
	if err != nil {
		return fmt.Errorf("parsing stops.txt: %w", err)
	}

	err = ParseStopTimes(store, file["stop_times.txt"], trips, stops)
	if err != nil {
		return fmt.Errorf("parsing stop_times.txt: %w", err)
	}

	if file["shapes.txt"] != nil {
		if err := ParseShapes(store, file["shapes.txt"]); err != nil {
			return fmt.Errorf("parsing shapes.txt: %w", err)
		}
	}

	if file["transfers.txt"] != nil {
		if err := ParseTransfers(store, file["transfers.txt"], stops); err != nil {
			return fmt.Errorf("parsing transfers.txt: %w", err)
		}
	}

	if err := store.CommitTrans(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
