// Package protocol parses delimited text frames (NMEA-like sentences) into
// record values according to a declarative layout.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// FieldSpec places one record value in a frame. UnitToken is the index of the
// unit token paired with the value, or -1 when the value carries no unit.
type FieldSpec struct {
	domain.FieldDescriptor `yaml:",inline"`

	ValueToken int `yaml:"value_token"`
	UnitToken  int `yaml:"unit_token"`
}

// Layout describes one frame format.
type Layout struct {
	Name           string          `yaml:"name"`
	Definition     string          `yaml:"definition"`
	Delimiter      string          `yaml:"delimiter"`
	Prefix         string          `yaml:"prefix"`
	Types          []string        `yaml:"types"`
	Checksum       bool            `yaml:"checksum"`
	Fields         []FieldSpec     `yaml:"fields"`
	Encoding       domain.Encoding `yaml:"encoding"`
	SamplingPeriod time.Duration   `yaml:"sampling_period"`
	Units          map[string]Unit `yaml:"-"`
}

func (l *Layout) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layout name is required")
	}
	if l.Delimiter == "" {
		return fmt.Errorf("layout %q: delimiter is required", l.Name)
	}
	if l.Prefix == "" {
		return fmt.Errorf("layout %q: prefix is required", l.Name)
	}
	if len(l.Fields) == 0 {
		return fmt.Errorf("layout %q: at least one field is required", l.Name)
	}
	seen := make(map[string]struct{}, len(l.Fields))
	for _, f := range l.Fields {
		if f.Name == "" {
			return fmt.Errorf("layout %q: field without name", l.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("layout %q: duplicate field %q", l.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.ValueToken < 1 {
			return fmt.Errorf("layout %q: field %q: value_token must be >= 1", l.Name, f.Name)
		}
		if f.UnitToken == 0 || f.UnitToken < -1 {
			return fmt.Errorf("layout %q: field %q: unit_token must be -1 (none) or >= 1", l.Name, f.Name)
		}
	}
	return nil
}

// Parser implements ports.FrameParser for a Layout.
type Parser struct {
	layout    Layout
	schema    *domain.Schema
	units     map[string]Unit
	minTokens int
	unitWarn  func(field, unit string, err error)
}

type ParserOption func(*Parser)

// WithUnitWarning is called for every field left unavailable because its unit
// token could not be converted to the field's unit.
func WithUnitWarning(fn func(field, unit string, err error)) ParserOption {
	return func(p *Parser) { p.unitWarn = fn }
}

func NewParser(layout Layout, opts ...ParserOption) (*Parser, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	units := layout.Units
	if units == nil {
		units = DefaultUnits
	}
	descs := make([]domain.FieldDescriptor, len(layout.Fields))
	minTokens := 1
	if len(layout.Types) > 0 {
		minTokens = 2
	}
	for i, f := range layout.Fields {
		descs[i] = f.FieldDescriptor
		if f.ValueToken+1 > minTokens {
			minTokens = f.ValueToken + 1
		}
		if f.UnitToken+1 > minTokens {
			minTokens = f.UnitToken + 1
		}
	}
	if layout.Encoding.Kind == "" {
		layout.Encoding = domain.TextEncoding(",", "\n")
	}
	p := &Parser{
		layout:    layout,
		schema:    domain.NewSchema(layout.Name, layout.Definition, descs...),
		units:     units,
		minTokens: minTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Parser) Schema() *domain.Schema        { return p.schema }
func (p *Parser) Encoding() domain.Encoding     { return p.layout.Encoding }
func (p *Parser) SamplingPeriod() time.Duration { return p.layout.SamplingPeriod }

// Parse fills dst with the values of frame. Values whose value or unit token is
// empty stay NaN, and so do values whose unit cannot be converted; the other
// fields of the frame are kept. Non-finite numbers reject the frame. dst must
// come prefilled with NaN.
func (p *Parser) Parse(frame []byte, dst []float64) error {
	if len(dst) != p.schema.Arity() {
		return fmt.Errorf("%s: destination holds %d values, want %d: %w", p.layout.Name, len(dst), p.schema.Arity(), domain.ErrProtocolParse)
	}
	line := strings.TrimRight(string(frame), "\r\n")
	if p.layout.Checksum {
		var err error
		if line, err = stripChecksum(line); err != nil {
			return fmt.Errorf("%s: %v: %w", p.layout.Name, err, domain.ErrProtocolParse)
		}
	}

	tokens := strings.Split(line, p.layout.Delimiter)
	if tokens[0] != p.layout.Prefix {
		return fmt.Errorf("%s: unexpected prefix %q: %w", p.layout.Name, tokens[0], domain.ErrProtocolParse)
	}
	if len(p.layout.Types) > 0 {
		if len(tokens) < 2 || !contains(p.layout.Types, tokens[1]) {
			typ := ""
			if len(tokens) > 1 {
				typ = tokens[1]
			}
			return fmt.Errorf("%s: unsupported message type %q: %w", p.layout.Name, typ, domain.ErrProtocolParse)
		}
	}
	if len(tokens) < p.minTokens {
		return fmt.Errorf("%s: frame has %d tokens, want %d: %w", p.layout.Name, len(tokens), p.minTokens, domain.ErrProtocolParse)
	}

	for i, f := range p.layout.Fields {
		raw := strings.TrimSpace(tokens[f.ValueToken])
		unit := ""
		if f.UnitToken >= 0 {
			unit = strings.TrimSpace(tokens[f.UnitToken])
			if unit == "" {
				continue
			}
		}
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: field %q: %v: %w", p.layout.Name, f.Name, err, domain.ErrProtocolParse)
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%s: field %q: non-finite value %q: %w", p.layout.Name, f.Name, raw, domain.ErrProtocolParse)
		}
		if unit != "" {
			if v, err = p.convert(v, unit, f.Unit); err != nil {
				if p.unitWarn != nil {
					p.unitWarn(f.Name, unit, err)
				}
				continue
			}
		}
		dst[i] = v
	}
	return nil
}

func (p *Parser) convert(v float64, unit, canonical string) (float64, error) {
	if unit == canonical {
		return v, nil
	}
	u, ok := p.units[unit]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	if u.Canonical != canonical {
		return 0, fmt.Errorf("unit %q measures %s, field wants %s", unit, u.Canonical, canonical)
	}
	return v * u.Factor, nil
}

// stripChecksum verifies and removes an NMEA "*hh" suffix. Sentences without a
// checksum pass unchanged.
func stripChecksum(line string) (string, error) {
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		return line, nil
	}
	body, sum := line[:star], line[star+1:]
	want, err := strconv.ParseUint(sum, 16, 8)
	if err != nil {
		return "", fmt.Errorf("bad checksum %q", sum)
	}
	var got byte
	for i := strings.IndexByte(body, '$') + 1; i < len(body); i++ {
		got ^= body[i]
	}
	if got != byte(want) {
		return "", fmt.Errorf("checksum mismatch: got %02X want %02X", got, want)
	}
	return body, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ ports.FrameParser = (*Parser)(nil)
