package ports

import "github.com/ghalamif/SensorHub/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, err error, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id WALEntryID, o *domain.Observation, err error)

	// With returns a scoped view whose logs and per-channel metrics carry fields.
	With(fields ...Field) Observability
}

type Field struct {
	Key   string
	Value any
}
