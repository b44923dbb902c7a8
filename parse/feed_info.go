package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/transitlake/transitlake/storage"
)

type FeedInfoCSV struct {
	PublisherName string `csv:"feed_publisher_name"`
	PublisherURL  string `csv:"feed_publisher_url"`
	Lang          string `csv:"feed_lang"`
	StartDate     string `csv:"feed_start_date"`
	EndDate       string `csv:"feed_end_date"`
	Version       string `csv:"feed_version"`
}

func ParseFeedInfo(store storage.Store, data io.Reader) error {
	feedInfoCsv := []*FeedInfoCSV{}
	if err := gocsv.Unmarshal(data, &feedInfoCsv); err != nil {
		return fmt.Errorf("unmarshaling feed_info csv: %w", err)
	}

	for _, fi := range feedInfoCsv {
		if fi.PublisherName == "" {
			return fmt.Errorf("missing feed_publisher_name")
		}

		err := store.WriteFeedInfo(&storage.FeedInfo{
			PublisherName: fi.PublisherName,
			PublisherURL:  fi.PublisherURL,
			Lang:          fi.Lang,
			StartDate:     fi.StartDate,
			EndDate:       fi.EndDate,
			Version:       fi.Version,
		})
		if err != nil {
			return fmt.Errorf("writing feed info: %w", err)
		}
	}

	return nil
}
