package ports

import "github.com/ghalamif/SensorHub/internal/domain"

// FrameParser turns one raw frame into record values. Parse writes exactly
// Schema().Arity() values into dst; unreported values are NaN. A malformed
// frame yields an error wrapping domain.ErrProtocolParse.
type FrameParser interface {
	Parse(frame []byte, dst []float64) error
	Schema() *domain.Schema
	Encoding() domain.Encoding
}
