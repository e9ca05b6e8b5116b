package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/SensorHub/internal/adapters/codec"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// NATSPublisher is the part of *nats.Conn the sink uses.
type NATSPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
}

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
}

// NATSSink publishes each observation on <prefix>.<module>.<channel> and
// flushes once per batch.
type NATSSink struct {
	conn   NATSPublisher
	codec  codec.Codec
	prefix string
	flush  time.Duration
}

func NewNATSSink(conn NATSPublisher, c codec.Codec, cfg NATSConfig) *NATSSink {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "sensorhub"
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = defaultPublishTimeout
	}
	return &NATSSink{conn: conn, codec: c, prefix: prefix, flush: flush}
}

// ConnectNATS dials the server with unlimited reconnects.
func ConnectNATS(cfg NATSConfig, obs ports.Observability) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("sensorhub"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				obs.LogWarn("nats disconnected", err, ports.Field{Key: "url", Value: cfg.URL})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			obs.LogInfo("nats reconnected", ports.Field{Key: "url", Value: c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}
	return nc, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Subject is the subject an observation is published on. NATS tokens cannot
// contain dots or spaces, so those are replaced.
func (s *NATSSink) Subject(o *domain.Observation) string {
	return s.prefix + "." + subjectToken(o.ModuleID) + "." + subjectToken(o.Channel)
}

func (s *NATSSink) WriteBatch(observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	for _, o := range observations {
		payload, err := s.codec.Encode(o)
		if err != nil {
			return fmt.Errorf("nats: encode %s #%d: %w: %w", o.Channel, o.Seq, err, ports.ErrRejected)
		}
		msg := nats.NewMsg(s.Subject(o))
		msg.Data = payload
		msg.Header.Set("Content-Type", s.codec.ContentType())
		msg.Header.Set("Sensorhub-Seq", fmt.Sprint(o.Seq))
		if err := s.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats: publish %s: %w", msg.Subject, err)
		}
	}
	if err := s.conn.FlushTimeout(s.flush); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

var _ ports.Sink = (*NATSSink)(nil)
