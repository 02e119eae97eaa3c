package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const mqttWait = 10 * time.Second

// MQTTSource is a Source fed only by a vehicle GPS unit publishing
// PositionPayload JSON on <prefix>/<operatorID>/gps. It does not accept
// pushed positions from anywhere else.
type MQTTSource struct {
	feed   *PushSource
	client mqtt.Client
	topic  string
}

// GPSTopic returns the topic a unit publishes an operator's positions on
func GPSTopic(prefix, operatorID string) string {
	return fmt.Sprintf("%s/%s/gps", prefix, operatorID)
}

// NewMQTTSource connects to broker and subscribes to topic
func NewMQTTSource(broker, clientID, topic string) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttWait)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttWait) {
		// stop the pending connect and its auto-reconnect loop
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	s := &MQTTSource{
		feed:   NewPushSource(),
		client: client,
		topic:  topic,
	}

	token = client.Subscribe(topic, 1, s.onMessage)
	if !token.WaitTimeout(mqttWait) {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	logrus.WithField("topic", topic).Info("✅ Subscribed to GPS unit feed")
	return s, nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var payload PositionPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"topic": msg.Topic(),
			"error": err.Error(),
		}).Warn("❌ Invalid GPS payload")
		return
	}
	s.feed.Push(payload.ToPosition(s.feed.now()))
}

func (s *MQTTSource) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	return s.feed.CurrentPosition(ctx, opts)
}

func (s *MQTTSource) Watch(opts PositionOptions, onPosition func(Position), onError func(error)) (func(), error) {
	return s.feed.Watch(opts, onPosition, onError)
}

// Close unsubscribes and disconnects from the broker
func (s *MQTTSource) Close() {
	if s.client == nil {
		return
	}
	s.client.Unsubscribe(s.topic).WaitTimeout(mqttWait)
	s.client.Disconnect(250)
}
