package domain

import "fmt"

// SchemaErrorKind classifies why a merchant payload failed schema validation.
type SchemaErrorKind string

const (
	SchemaMissingField     SchemaErrorKind = "missing_field"
	SchemaInvalidType      SchemaErrorKind = "invalid_type"
	SchemaInvalidEnumValue SchemaErrorKind = "invalid_enum_value"
)

// SchemaError reports a merchant payload that does not match the UCP schema.
// Field holds the JSON path of the offending value. Parsing is atomic: a
// payload that produces a SchemaError yields no partially constructed entity.
type SchemaError struct {
	Kind  SchemaErrorKind
	Field string
	Value string
}

func (e *SchemaError) Error() string {
	switch e.Kind {
	case SchemaMissingField:
		return fmt.Sprintf("schema: missing required field %q", e.Field)
	case SchemaInvalidType:
		return fmt.Sprintf("schema: invalid type for field %q", e.Field)
	case SchemaInvalidEnumValue:
		return fmt.Sprintf("schema: invalid value %q for field %q", e.Value, e.Field)
	}
	return fmt.Sprintf("schema: invalid field %q", e.Field)
}

func missingField(field string) *SchemaError {
	return &SchemaError{Kind: SchemaMissingField, Field: field}
}

func invalidType(field, value string) *SchemaError {
	return &SchemaError{Kind: SchemaInvalidType, Field: field, Value: value}
}

func invalidEnum(field, value string) *SchemaError {
	return &SchemaError{Kind: SchemaInvalidEnumValue, Field: field, Value: value}
}

// indexed builds the JSON path for an element field, e.g. "line_items[2].quantity".
func indexed(list string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, i, field)
}
