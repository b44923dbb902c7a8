package transitlake

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Intake connects to the MQTT broker and feeds incoming messages
// through the matcher onto the mutation queues. Each configured
// subscription carries its own ID mapping.
type Intake struct {
	cfg     MQTTConfig
	matcher *Matcher
	queues  *Queues
	index   func() *NominalIndex
	logger  *zap.Logger

	subscriptions []*intakeSubscription
	client        mqtt.Client
}

type intakeSubscription struct {
	topic    string
	feedType string
	mapping  *Mapping
}

// NewIntake loads the subscription mappings and prepares the client.
// The index func is called per message so a rebuilt index takes effect
// without reconnecting.
func NewIntake(cfg MQTTConfig, matcher *Matcher, queues *Queues, index func() *NominalIndex, logger *zap.Logger) (*Intake, error) {
	in := &Intake{
		cfg:     cfg,
		matcher: matcher,
		queues:  queues,
		index:   index,
		logger:  logger,
	}

	for _, sub := range cfg.Subscriptions {
		mapping, err := LoadMapping(sub.Mapping)
		if err != nil {
			return nil, fmt.Errorf("loading mapping for '%s': %w", sub.Topic, err)
		}
		in.subscriptions = append(in.subscriptions, &intakeSubscription{
			topic:    sub.Topic,
			feedType: sub.Type,
			mapping:  mapping,
		})
	}

	return in, nil
}

// Connect dials the broker and subscribes to every configured topic.
func (in *Intake) Connect() error {
	clientID := fmt.Sprintf("%s-%s", in.cfg.Client, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", in.cfg.Host, in.cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(time.Duration(in.cfg.KeepaliveSecs) * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(in.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			in.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if in.cfg.Username != "" {
		opts.SetUsername(in.cfg.Username)
		opts.SetPassword(in.cfg.Password)
	}

	in.client = mqtt.NewClient(opts)
	if token := in.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}

	in.logger.Info("connected to mqtt broker",
		zap.String("host", in.cfg.Host),
		zap.Int("port", in.cfg.Port),
		zap.String("client_id", clientID))

	return nil
}

// onConnect resubscribes, also after an automatic reconnect.
func (in *Intake) onConnect(client mqtt.Client) {
	for _, sub := range in.subscriptions {
		token := client.Subscribe(sub.topic, 0, in.handleMessage)
		if token.Wait() && token.Error() != nil {
			in.logger.Error("subscribing failed",
				zap.String("topic", sub.topic),
				zap.Error(token.Error()))
			continue
		}
		in.logger.Info("subscribed",
			zap.String("topic", sub.topic),
			zap.String("type", sub.feedType))
	}
}

// handleMessage dispatches a message to the first subscription whose
// filter matches the topic.
func (in *Intake) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	sub := in.matchSubscription(msg.Topic())
	if sub == nil {
		in.logger.Debug("message on unclaimed topic", zap.String("topic", msg.Topic()))
		return
	}

	idx := in.index()
	if idx == nil {
		in.logger.Warn("dropping message, nominal index not ready",
			zap.String("topic", msg.Topic()))
		return
	}

	var err error
	switch sub.feedType {
	case FeedTypeServiceAlerts:
		err = in.matcher.ProcessServiceAlerts(idx, sub.mapping, msg.Payload(), in.queues)
	case FeedTypeTripUpdates:
		err = in.matcher.ProcessTripUpdates(idx, sub.mapping, msg.Payload(), in.queues)
	case FeedTypeVehiclePositions:
		err = in.matcher.ProcessVehiclePositions(idx, sub.mapping, msg.Payload(), in.queues)
	}
	if err != nil {
		in.logger.Warn("processing message failed",
			zap.String("topic", msg.Topic()),
			zap.String("type", sub.feedType),
			zap.Error(err))
	}
}

func (in *Intake) matchSubscription(topic string) *intakeSubscription {
	for _, sub := range in.subscriptions {
		if MatchTopic(sub.topic, topic) {
			return sub
		}
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight handlers a
// moment to finish.
func (in *Intake) Close() {
	if in.client != nil && in.client.IsConnected() {
		in.client.Disconnect(250)
	}
}
