package domain

import (
	"math"
	"time"
)

// Observation is the flattened, self-contained form of a record that leaves the
// module: it travels through the WAL, the forwarding queue and the sinks.
type Observation struct {
	ModuleID  string    `json:"module_id" msgpack:"module_id"`
	Channel   string    `json:"channel" msgpack:"channel"`
	Seq       uint64    `json:"seq" msgpack:"seq"`
	Timestamp time.Time `json:"ts" msgpack:"ts"`
	Fields    []string  `json:"fields" msgpack:"fields"`
	Values    []float64 `json:"values" msgpack:"values"`
}

// ObservationFromEvent flattens a data event. ok is false for failure events.
func ObservationFromEvent(ev Event) (*Observation, bool) {
	if ev.Kind != EventData || ev.Record.IsZero() {
		return nil, false
	}
	return &Observation{
		ModuleID:  ev.ModuleID,
		Channel:   ev.Channel,
		Seq:       ev.Record.Seq(),
		Timestamp: ev.Record.Timestamp(),
		Fields:    ev.Record.Schema().FieldNames(),
		Values:    ev.Record.Values(),
	}, true
}

// AvailableValues maps field names to values, leaving out fields that were not reported.
func (o *Observation) AvailableValues() map[string]float64 {
	out := make(map[string]float64, len(o.Values))
	for i, v := range o.Values {
		if i >= len(o.Fields) || math.IsNaN(v) {
			continue
		}
		out[o.Fields[i]] = v
	}
	return out
}
