package sink

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"

	"github.com/ghalamif/SensorHub/internal/adapters/codec"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	msgs  []published
	token *fakeToken
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.token
}

func rangeObservation(seq uint64) *domain.Observation {
	return &domain.Observation{
		ModuleID:  "rangefinder",
		Channel:   "rangeData",
		Seq:       seq,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Fields:    []string{"horizDistance", "azimuth"},
		Values:    []float64{36.7285, math.NaN()},
	}
}

func TestMQTTSinkPublishesPerObservation(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{complete: true}}
	sink := NewMQTTSink(client, codec.JSONCodec{}, MQTTConfig{TopicPrefix: "site/a", QoS: 1})

	if err := sink.WriteBatch([]*domain.Observation{rangeObservation(1), rangeObservation(2)}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if len(client.msgs) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(client.msgs))
	}
	if client.msgs[0].topic != "site/a/rangefinder/rangeData" || client.msgs[0].qos != 1 {
		t.Fatalf("unexpected publish %+v", client.msgs[0])
	}
	if !strings.Contains(string(client.msgs[1].payload), `"seq":2`) {
		t.Fatalf("unexpected payload %s", client.msgs[1].payload)
	}
	if sink.Name() != "mqtt" {
		t.Fatalf("expected sink name mqtt, got %s", sink.Name())
	}
}

func TestMQTTSinkTimeoutAndError(t *testing.T) {
	sink := NewMQTTSink(&fakeMQTT{token: &fakeToken{}}, codec.JSONCodec{}, MQTTConfig{})
	if err := sink.WriteBatch([]*domain.Observation{rangeObservation(1)}); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}

	brokerErr := errors.New("not authorized")
	sink = NewMQTTSink(&fakeMQTT{token: &fakeToken{complete: true, err: brokerErr}}, codec.JSONCodec{}, MQTTConfig{})
	if err := sink.WriteBatch([]*domain.Observation{rangeObservation(1)}); !errors.Is(err, brokerErr) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if got := sink.Topic(rangeObservation(1)); got != "sensorhub/rangefinder/rangeData" {
		t.Fatalf("unexpected default topic %s", got)
	}
}

type fakeNATS struct {
	msgs     []*nats.Msg
	flushes  int
	flushErr error
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNATS) FlushTimeout(time.Duration) error {
	f.flushes++
	return f.flushErr
}

func TestNATSSinkPublishesAndFlushesOnce(t *testing.T) {
	conn := &fakeNATS{}
	sink := NewNATSSink(conn, codec.MsgpackCodec{}, NATSConfig{})

	o := rangeObservation(7)
	o.ModuleID = "range.finder"
	if err := sink.WriteBatch([]*domain.Observation{o, rangeObservation(8)}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if len(conn.msgs) != 2 || conn.flushes != 1 {
		t.Fatalf("expected 2 messages and 1 flush, got %d and %d", len(conn.msgs), conn.flushes)
	}
	if conn.msgs[0].Subject != "sensorhub.range_finder.rangeData" {
		t.Fatalf("unexpected subject %s", conn.msgs[0].Subject)
	}
	if conn.msgs[0].Header.Get("Content-Type") != "application/msgpack" || conn.msgs[0].Header.Get("Sensorhub-Seq") != "7" {
		t.Fatalf("unexpected headers %v", conn.msgs[0].Header)
	}

	if err := sink.WriteBatch(nil); err != nil || conn.flushes != 1 {
		t.Fatalf("empty batch should not flush: %v", err)
	}
}

func TestNATSSinkFlushError(t *testing.T) {
	flushErr := errors.New("nats: timeout")
	sink := NewNATSSink(&fakeNATS{flushErr: flushErr}, codec.JSONCodec{}, NATSConfig{SubjectPrefix: "plant"})
	if err := sink.WriteBatch([]*domain.Observation{rangeObservation(1)}); !errors.Is(err, flushErr) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if sink.Name() != "nats" {
		t.Fatalf("expected sink name nats, got %s", sink.Name())
	}
}

type failingCodec struct{}

func (failingCodec) Encode(*domain.Observation) ([]byte, error) { return nil, errors.New("boom") }
func (failingCodec) ContentType() string                        { return "x" }

func TestEncodeFailureRejectsBatch(t *testing.T) {
	mq := NewMQTTSink(&fakeMQTT{token: &fakeToken{complete: true}}, failingCodec{}, MQTTConfig{})
	if err := mq.WriteBatch([]*domain.Observation{rangeObservation(1)}); !errors.Is(err, ports.ErrRejected) {
		t.Fatalf("expected ErrRejected from mqtt, got %v", err)
	}
	ns := NewNATSSink(&fakeNATS{}, failingCodec{}, NATSConfig{})
	if err := ns.WriteBatch([]*domain.Observation{rangeObservation(1)}); !errors.Is(err, ports.ErrRejected) {
		t.Fatalf("expected ErrRejected from nats, got %v", err)
	}
}
