package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// TimescaleSink writes observations into a hypertable keyed by
// (module_id, channel, ts, seq). seq restarts at 1 whenever the channels are
// rebuilt, so it only identifies a row together with its timestamp. Values are stored as JSON without unavailable fields.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

func (t *TimescaleSink) WriteBatch(observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	// Replays after a crash resend committed rows; the unique key makes them no-ops.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (module_id, channel, ts, seq, values) VALUES ")

	args := make([]any, 0, len(observations)*5)
	for i, o := range observations {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))
		vals, err := json.Marshal(o.AvailableValues())
		if err != nil {
			return fmt.Errorf("timescale: marshal values: %w: %w", err, ports.ErrRejected)
		}

		args = append(args,
			o.ModuleID,
			o.Channel,
			o.Timestamp,
			int64(o.Seq),
			vals,
		)
	}

	b.WriteString(" ON CONFLICT (module_id, channel, ts, seq) DO NOTHING")

	if _, err := t.db.Exec(b.String(), args...); err != nil {
		return fmt.Errorf("timescale: insert %d rows: %w", len(observations), err)
	}
	return nil
}

var _ ports.Sink = (*TimescaleSink)(nil)
