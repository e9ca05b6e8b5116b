// Package codec renders observations into sink payloads.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/SensorHub/internal/domain"
)

const (
	JSON    = "json"
	Msgpack = "msgpack"
	Text    = "text"
)

// Codec encodes one observation.
type Codec interface {
	Encode(o *domain.Observation) ([]byte, error)
	ContentType() string
}

// New resolves a codec by name. An empty name selects JSON. The text codec
// uses enc for its separators.
func New(name string, enc domain.Encoding) (Codec, error) {
	switch name {
	case "", JSON:
		return JSONCodec{}, nil
	case Msgpack:
		return MsgpackCodec{}, nil
	case Text:
		return NewTextCodec(enc), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q: %w", name, domain.ErrConfiguration)
	}
}

// JSONCodec writes unavailable values as null.
type JSONCodec struct{}

type jsonObservation struct {
	ModuleID  string              `json:"module_id"`
	Channel   string              `json:"channel"`
	Seq       uint64              `json:"seq"`
	Timestamp time.Time           `json:"ts"`
	Values    map[string]*float64 `json:"values"`
}

func (JSONCodec) Encode(o *domain.Observation) ([]byte, error) {
	values := make(map[string]*float64, len(o.Fields))
	for i, name := range o.Fields {
		if i >= len(o.Values) || math.IsNaN(o.Values[i]) {
			values[name] = nil
			continue
		}
		v := o.Values[i]
		values[name] = &v
	}
	return json.Marshal(jsonObservation{
		ModuleID:  o.ModuleID,
		Channel:   o.Channel,
		Seq:       o.Seq,
		Timestamp: o.Timestamp,
		Values:    values,
	})
}

func (JSONCodec) ContentType() string { return "application/json" }

// MsgpackCodec keeps NaN as is.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(o *domain.Observation) ([]byte, error) { return msgpack.Marshal(o) }
func (MsgpackCodec) ContentType() string                          { return "application/msgpack" }

// TextCodec renders "ts<tok>v1<tok>v2...<blk>", leaving unavailable values empty.
type TextCodec struct {
	enc domain.Encoding
}

func NewTextCodec(enc domain.Encoding) TextCodec {
	if enc.TokenSeparator == "" {
		enc.TokenSeparator = ","
	}
	if enc.BlockSeparator == "" {
		enc.BlockSeparator = "\n"
	}
	if enc.DecimalSeparator == "" {
		enc.DecimalSeparator = "."
	}
	return TextCodec{enc: enc}
}

func (c TextCodec) Encode(o *domain.Observation) ([]byte, error) {
	var b strings.Builder
	b.WriteString(o.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, v := range o.Values {
		b.WriteString(c.enc.TokenSeparator)
		if math.IsNaN(v) {
			continue
		}
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if c.enc.DecimalSeparator != "." {
			s = strings.Replace(s, ".", c.enc.DecimalSeparator, 1)
		}
		b.WriteString(s)
	}
	b.WriteString(c.enc.BlockSeparator)
	return []byte(b.String()), nil
}

func (TextCodec) ContentType() string { return "text/plain" }
