package transitlake

import (
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestIntake(t *testing.T, index func() *NominalIndex) (*Intake, *Queues) {
	queues := NewQueues()
	matcher := newTestMatcher(MatchingConfig{})

	in, err := NewIntake(MQTTConfig{
		Subscriptions: []SubscriptionConfig{
			{Topic: "gtfs/trip-updates/#", Type: FeedTypeTripUpdates},
			{Topic: "gtfs/alerts", Type: FeedTypeServiceAlerts},
			{Topic: "gtfs/positions/+", Type: FeedTypeVehiclePositions},
		},
	}, matcher, queues, index, zap.NewNop())
	require.NoError(t, err)

	return in, queues
}

func TestNewIntakeBadMapping(t *testing.T) {
	_, err := NewIntake(MQTTConfig{
		Subscriptions: []SubscriptionConfig{
			{
				Topic:   "gtfs/trip-updates",
				Type:    FeedTypeTripUpdates,
				Mapping: &MappingConfig{Routes: "/does/not/exist.csv"},
			},
		},
	}, newTestMatcher(MatchingConfig{}), NewQueues(), func() *NominalIndex { return nil }, zap.NewNop())
	assert.Error(t, err)
}

func TestMatchSubscription(t *testing.T) {
	in, _ := newTestIntake(t, func() *NominalIndex { return nil })

	sub := in.matchSubscription("gtfs/trip-updates/region-1")
	require.NotNil(t, sub)
	assert.Equal(t, FeedTypeTripUpdates, sub.feedType)

	sub = in.matchSubscription("gtfs/alerts")
	require.NotNil(t, sub)
	assert.Equal(t, FeedTypeServiceAlerts, sub.feedType)

	assert.Nil(t, in.matchSubscription("gtfs/unrelated"))
	assert.Nil(t, in.matchSubscription("gtfs/positions/a/b"))
}

func TestHandleMessageDispatch(t *testing.T) {
	idx := fixtureIndex()
	in, queues := newTestIntake(t, func() *NominalIndex { return idx })

	entity := tripUpdateEntity("TRIP_1", &gtfsrt.TripDescriptor{TripId: proto.String("TRIP_1")},
		stu(1, "STOP_A"))
	payload := marshalTestFeed(t, matcherNow, entity)

	in.handleMessage(nil, &fakeMessage{topic: "gtfs/trip-updates/region-1", payload: payload})
	assert.Equal(t, 1, queues.TripInserts.Len())

	// Unclaimed topics are ignored.
	in.handleMessage(nil, &fakeMessage{topic: "gtfs/unrelated", payload: payload})
	assert.Equal(t, 1, queues.Pending())
}

func TestHandleMessageWithoutIndex(t *testing.T) {
	in, queues := newTestIntake(t, func() *NominalIndex { return nil })

	entity := tripUpdateEntity("TRIP_1", &gtfsrt.TripDescriptor{TripId: proto.String("TRIP_1")})
	payload := marshalTestFeed(t, matcherNow, entity)

	in.handleMessage(nil, &fakeMessage{topic: "gtfs/trip-updates/region-1", payload: payload})
	assert.Zero(t, queues.Pending())
}
