package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/transitlake/transitlake/storage"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
	Lang     string `csv:"agency_lang"`
	Phone    string `csv:"agency_phone"`
}

func ParseAgency(store storage.Store, data io.Reader) (map[string]bool, error) {
	agencyCsv := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &agencyCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling agency csv: %w", err)
	}

	if len(agencyCsv) == 0 {
		return nil, fmt.Errorf("no agency record found")
	}

	agency := map[string]bool{}
	for _, a := range agencyCsv {
		if agency[a.ID] {
			return nil, fmt.Errorf("duplicated agency_id: '%s'", a.ID)
		}
		agency[a.ID] = true

		if a.Name == "" {
			return nil, fmt.Errorf("missing agency_name")
		}
		if a.Timezone == "" {
			return nil, fmt.Errorf("missing agency_timezone")
		}
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			return nil, fmt.Errorf("agency_timezone '%s' is invalid: %w", a.Timezone, err)
		}

		err := store.WriteAgency(&storage.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
			Lang:     a.Lang,
			Phone:    a.Phone,
		})
		if err != nil {
			return nil, fmt.Errorf("writing agency: %w", err)
		}
	}

	return agency, nil
}
