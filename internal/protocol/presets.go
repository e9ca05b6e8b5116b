package protocol

import (
	"fmt"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
)

const (
	PresetTruPulseHV = "trupulse-hv"

	propertyURI = "http://sensorml.com/ont/swe/property/"
)

// TruPulseHV is the horizontal-vector sentence of TruPulse laser rangefinders:
//
//	$PLTIT,HV,<hd>,<unit>,<az>,<unit>,<inc>,<unit>,<sd>,<unit>[*hh]
func TruPulseHV() Layout {
	ned := propertyURI + "NED"
	return Layout{
		Name:       "rangeData",
		Definition: propertyURI + "LaserRangeData",
		Delimiter:  ",",
		Prefix:     "$PLTIT",
		Types:      []string{"HV"},
		Checksum:   true,
		Fields: []FieldSpec{
			{FieldDescriptor: domain.FieldDescriptor{Name: "horizDistance", Definition: propertyURI + "HorizontalDistance", Label: "Horizontal Distance", Unit: "m"}, ValueToken: 2, UnitToken: 3},
			{FieldDescriptor: domain.FieldDescriptor{Name: "slopeDistance", Definition: propertyURI + "LineOfSightDistance", Label: "Line-of-Sight Distance", Unit: "m"}, ValueToken: 8, UnitToken: 9},
			{FieldDescriptor: domain.FieldDescriptor{Name: "azimuth", Definition: propertyURI + "TrueHeading", Label: "True Heading", Unit: "deg", ReferenceFrame: ned, AxisID: "z"}, ValueToken: 4, UnitToken: 5},
			{FieldDescriptor: domain.FieldDescriptor{Name: "inclination", Definition: propertyURI + "Inclination", Label: "Inclination", Unit: "deg", ReferenceFrame: ned, AxisID: "y"}, ValueToken: 6, UnitToken: 7},
		},
		Encoding:       domain.TextEncoding(",", "\n"),
		SamplingPeriod: 20 * time.Minute,
	}
}

// Preset resolves a named layout.
func Preset(name string) (Layout, error) {
	switch name {
	case PresetTruPulseHV:
		return TruPulseHV(), nil
	default:
		return Layout{}, fmt.Errorf("unknown protocol preset %q", name)
	}
}
