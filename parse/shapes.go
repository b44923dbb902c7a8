package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/transitlake/transitlake/storage"
)

type ShapeCSV struct {
	ID           string  `csv:"shape_id"`
	Lat          float64 `csv:"shape_pt_lat"`
	Lon          float64 `csv:"shape_pt_lon"`
	Sequence     uint32  `csv:"shape_pt_sequence"`
	DistTraveled float64 `csv:"shape_dist_traveled"`
}

func ParseShapes(store storage.Store, data io.Reader) error {
	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(sh *ShapeCSV) error {
		i += 1
		if sh.ID == "" {
			return fmt.Errorf("empty shape_id (row %d)", i+1)
		}

		err := store.WriteShape(&storage.Shape{
			ID:           sh.ID,
			Lat:          sh.Lat,
			Lon:          sh.Lon,
			Sequence:     sh.Sequence,
			DistTraveled: sh.DistTraveled,
		})
		if err != nil {
			return fmt.Errorf("writing shape (row %d): %w", i+1, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("unmarshaling shapes csv: %w", err)
	}

	return nil
}
