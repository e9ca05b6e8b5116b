package sink

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/SensorHub/internal/adapters/codec"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

const defaultPublishTimeout = 2 * time.Second

// MQTTPublisher is the part of mqtt.Client the sink uses.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	Retained       bool          `yaml:"retained"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// MQTTSink publishes each observation to <prefix>/<module>/<channel>.
type MQTTSink struct {
	client  MQTTPublisher
	codec   codec.Codec
	cfg     MQTTConfig
	timeout time.Duration
}

func NewMQTTSink(client MQTTPublisher, c codec.Codec, cfg MQTTConfig) *MQTTSink {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "sensorhub"
	}
	return &MQTTSink{client: client, codec: c, cfg: cfg, timeout: timeout}
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(cfg MQTTConfig, obs ports.Observability) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		obs.LogWarn("mqtt connection lost", err, ports.Field{Key: "broker", Value: cfg.Broker})
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	obs.LogInfo("mqtt connection established", ports.Field{Key: "broker", Value: cfg.Broker})
	return client, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic is the topic an observation is published on.
func (s *MQTTSink) Topic(o *domain.Observation) string {
	return s.cfg.TopicPrefix + "/" + o.ModuleID + "/" + o.Channel
}

func (s *MQTTSink) WriteBatch(observations []*domain.Observation) error {
	for _, o := range observations {
		payload, err := s.codec.Encode(o)
		if err != nil {
			return fmt.Errorf("mqtt: encode %s #%d: %w: %w", o.Channel, o.Seq, err, ports.ErrRejected)
		}
		token := s.client.Publish(s.Topic(o), s.cfg.QoS, s.cfg.Retained, payload)
		if !token.WaitTimeout(s.timeout) {
			return fmt.Errorf("mqtt: publish %s: timeout after %s", s.Topic(o), s.timeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish %s: %w", s.Topic(o), err)
		}
	}
	return nil
}

var _ ports.Sink = (*MQTTSink)(nil)
