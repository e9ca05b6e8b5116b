package ports

import (
	"errors"

	"github.com/ghalamif/SensorHub/internal/domain"
)

// ErrRejected marks a batch a sink can never write. The ingest loop sends its
// observations to the DLQ instead of retrying.
var ErrRejected = errors.New("sink: batch rejected")

type Sink interface {
	WriteBatch(observations []*domain.Observation) error
	Name() string
}
