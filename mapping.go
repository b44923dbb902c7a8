package transitlake

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Mapping substitutes feed-side route and stop IDs for the IDs the
// nominal timetable uses. Unmapped IDs pass through unchanged.
type Mapping struct {
	Routes map[string]string
	Stops  map[string]string
}

// LoadMapping reads the mapping files of a subscription. A nil config
// yields an empty mapping.
func LoadMapping(cfg *MappingConfig) (*Mapping, error) {
	m := &Mapping{
		Routes: map[string]string{},
		Stops:  map[string]string{},
	}
	if cfg == nil {
		return m, nil
	}

	var err error
	if cfg.Routes != "" {
		m.Routes, err = readMappingCSV(cfg.Routes)
		if err != nil {
			return nil, fmt.Errorf("reading route mapping: %w", err)
		}
	}
	if cfg.Stops != "" {
		m.Stops, err = readMappingCSV(cfg.Stops)
		if err != nil {
			return nil, fmt.Errorf("reading stop mapping: %w", err)
		}
	}

	return m, nil
}

// readMappingCSV reads semicolon separated src;dst pairs, no header.
func readMappingCSV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	mapping := map[string]string{}
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d has %d fields, want 2", i+1, len(record))
		}
		mapping[record[0]] = record[1]
	}

	return mapping, nil
}

func (m *Mapping) Route(id string) string {
	if dst, ok := m.Routes[id]; ok {
		return dst
	}
	return id
}

func (m *Mapping) Stop(id string) string {
	if dst, ok := m.Stops[id]; ok {
		return dst
	}
	return id
}
