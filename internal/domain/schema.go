package domain

// FieldDescriptor describes one value of a record: what it measures and in which unit.
type FieldDescriptor struct {
	Name           string `json:"name" yaml:"name"`
	Definition     string `json:"definition,omitempty" yaml:"definition"`
	Label          string `json:"label,omitempty" yaml:"label"`
	Unit           string `json:"unit" yaml:"unit"`
	ReferenceFrame string `json:"reference_frame,omitempty" yaml:"reference_frame"`
	AxisID         string `json:"axis_id,omitempty" yaml:"axis_id"`
}

// Schema is the ordered field layout shared by every record of a channel.
// It is immutable once built; accessors hand out copies.
type Schema struct {
	name       string
	definition string
	fields     []FieldDescriptor
	index      map[string]int
}

// NewSchema builds a schema. Field order is the value order of records.
func NewSchema(name, definition string, fields ...FieldDescriptor) *Schema {
	s := &Schema{
		name:       name,
		definition: definition,
		fields:     make([]FieldDescriptor, len(fields)),
		index:      make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i, f := range s.fields {
		s.index[f.Name] = i
	}
	return s
}

func (s *Schema) Name() string       { return s.name }
func (s *Schema) Definition() string { return s.definition }
func (s *Schema) Arity() int         { return len(s.fields) }

// Field returns the i-th field descriptor.
func (s *Schema) Field(i int) FieldDescriptor { return s.fields[i] }

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames returns the ordered field names.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// IndexOf returns the position of the named field, or -1.
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Encoding is the recommended rendering of a channel's records. The core only
// carries it; serializers downstream decide whether to honour it.
type Encoding struct {
	Kind             string `json:"kind" yaml:"kind"`
	TokenSeparator   string `json:"token_separator" yaml:"token_separator"`
	BlockSeparator   string `json:"block_separator" yaml:"block_separator"`
	DecimalSeparator string `json:"decimal_separator" yaml:"decimal_separator"`
}

// TextEncoding returns a delimited-text encoding descriptor.
func TextEncoding(tokenSep, blockSep string) Encoding {
	return Encoding{
		Kind:             "text",
		TokenSeparator:   tokenSep,
		BlockSeparator:   blockSep,
		DecimalSeparator: ".",
	}
}
