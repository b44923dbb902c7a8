package transitlake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		filter string
		topic  string
		want   bool
	}{
		{"gtfs/trip-updates", "gtfs/trip-updates", true},
		{"gtfs/trip-updates", "gtfs/alerts", false},
		{"gtfs/trip-updates", "gtfs/trip-updates/extra", false},
		{"gtfs/trip-updates/extra", "gtfs/trip-updates", false},
		{"gtfs/+/pbf", "gtfs/trip-updates/pbf", true},
		{"gtfs/+/pbf", "gtfs/trip-updates/json", false},
		{"+/trip-updates", "gtfs/trip-updates", true},
		{"+", "gtfs", true},
		{"+", "gtfs/trip-updates", false},
		{"#", "gtfs", true},
		{"#", "gtfs/trip-updates/pbf", true},
		{"gtfs/#", "gtfs", true},
		{"gtfs/#", "gtfs/trip-updates", true},
		{"gtfs/#", "gtfs/trip-updates/pbf", true},
		{"gtfs/#", "other/trip-updates", false},
		{"gtfs/#/pbf", "gtfs/trip-updates/pbf", false},
		{"gtfs/+/#", "gtfs/trip-updates/pbf", true},
	} {
		assert.Equal(t, tc.want, MatchTopic(tc.filter, tc.topic),
			"filter %q topic %q", tc.filter, tc.topic)
	}
}
