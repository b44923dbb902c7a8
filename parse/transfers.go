package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/transitlake/transitlake/storage"
)

type TransferCSV struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	FromRouteID     string `csv:"from_route_id"`
	ToRouteID       string `csv:"to_route_id"`
	FromTripID      string `csv:"from_trip_id"`
	ToTripID        string `csv:"to_trip_id"`
	Type            int    `csv:"transfer_type"`
	MinTransferTime int    `csv:"min_transfer_time"`
}

func ParseTransfers(store storage.Store, data io.Reader, stops map[string]bool) error {
	transferCsv := []*TransferCSV{}
	if err := gocsv.Unmarshal(data, &transferCsv); err != nil {
		return fmt.Errorf("unmarshaling transfers csv: %w", err)
	}

	for _, t := range transferCsv {
		if t.FromStopID != "" && !stops[t.FromStopID] {
			return fmt.Errorf("unknown from_stop_id '%s'", t.FromStopID)
		}
		if t.ToStopID != "" && !stops[t.ToStopID] {
			return fmt.Errorf("unknown to_stop_id '%s'", t.ToStopID)
		}

		err := store.WriteTransfer(&storage.Transfer{
			FromStopID:      t.FromStopID,
			ToStopID:        t.ToStopID,
			FromRouteID:     t.FromRouteID,
			ToRouteID:       t.ToRouteID,
			FromTripID:      t.FromTripID,
			ToTripID:        t.ToTripID,
			Type:            t.Type,
			MinTransferTime: t.MinTransferTime,
		})
		if err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
	}

	return nil
}
