package storage

import (
	"fmt"
	"strconv"
)

// MergeStaticByStopID merges the static tables of src into dst. Stops
// are upserted by stop_id so shared stations keep a single row, every
// other table is appended as-is.
func MergeStaticByStopID(dst, src Store) error {
	for _, table := range src.TableNames() {
		columns, rows, err := src.DumpTable(table)
		if err != nil {
			return fmt.Errorf("dumping %s: %w", table, err)
		}
		if len(rows) == 0 {
			continue
		}

		if table == "stops" {
			if err := mergeStops(dst, columns, rows); err != nil {
				return err
			}
			continue
		}

		if err := dst.InsertRows(table, columns, rows); err != nil {
			return fmt.Errorf("merging %s: %w", table, err)
		}
	}

	return nil
}

func mergeStops(dst Store, columns []string, rows [][]string) error {
	index := map[string]int{}
	for i, c := range columns {
		index[c] = i
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok {
			return ""
		}
		return row[i]
	}

	for _, row := range rows {
		lat, _ := strconv.ParseFloat(field(row, "stop_lat"), 64)
		lon, _ := strconv.ParseFloat(field(row, "stop_lon"), 64)
		locationType, _ := strconv.Atoi(field(row, "location_type"))

		stop := &Stop{
			ID:            field(row, "stop_id"),
			Code:          field(row, "stop_code"),
			Name:          field(row, "stop_name"),
			Desc:          field(row, "stop_desc"),
			Lat:           lat,
			Lon:           lon,
			URL:           field(row, "stop_url"),
			LocationType:  locationType,
			ParentStation: field(row, "parent_station"),
			PlatformCode:  field(row, "platform_code"),
		}
		if stop.ID == "" {
			return fmt.Errorf("merging stops: row without stop_id")
		}
		if err := dst.UpsertStop(stop); err != nil {
			return fmt.Errorf("merging stop '%s': %w", stop.ID, err)
		}
	}

	return nil
}
