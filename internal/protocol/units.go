package protocol

// Unit maps a unit token reported on the wire to a canonical unit.
type Unit struct {
	Canonical string
	Factor    float64
}

const (
	feetToMeters  = 0.304800610
	yardsToMeters = 0.9144
)

// DefaultUnits is the conversion table used when a layout does not bring its own.
var DefaultUnits = map[string]Unit{
	"F": {Canonical: "m", Factor: feetToMeters},
	"Y": {Canonical: "m", Factor: yardsToMeters},
	"M": {Canonical: "m", Factor: 1},
	"m": {Canonical: "m", Factor: 1},
	"D": {Canonical: "deg", Factor: 1},
}
