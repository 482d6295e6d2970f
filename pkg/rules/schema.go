package rules

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindTime   FieldKind = "time"
	// KindJSON is free-form; any sub-path below it is accepted.
	KindJSON FieldKind = "json"
)

// Schema lists the field paths an entity snapshot exposes.
type Schema struct {
	EntityType string
	Fields     map[string]FieldKind
}

var timeType = reflect.TypeOf(time.Time{})

// SchemaFromStruct derives a schema from the json tags of a model.
func SchemaFromStruct(entityType string, model any) *Schema {
	s := &Schema{EntityType: entityType, Fields: map[string]FieldKind{}}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		s.Fields[name] = kindOf(field.Type)
	}
	return s
}

// Nest exposes child's fields under prefix, e.g. "carrier.name".
func (s *Schema) Nest(prefix string, child *Schema) *Schema {
	s.Fields[prefix] = KindJSON
	for path, kind := range child.Fields {
		s.Fields[prefix+SplitToken+path] = kind
	}
	return s
}

// Kind returns the kind of path and whether the schema knows it.
func (s *Schema) Kind(path string) (FieldKind, bool) {
	if kind, ok := s.Fields[path]; ok {
		return kind, true
	}
	segments := strings.Split(path, SplitToken)
	for i := len(segments) - 1; i > 0; i-- {
		if s.Fields[strings.Join(segments[:i], SplitToken)] == KindJSON {
			return KindJSON, true
		}
	}
	return "", false
}

// Validate rejects unknown fields, unknown operators and numeric operators on
// fields that never hold numbers.
func (s *Schema) Validate(conditions []Condition) error {
	var errs []error
	for i, condition := range conditions {
		if !condition.Operator.IsValid() {
			errs = append(errs, fmt.Errorf("condition %d: unknown operator %q", i, condition.Operator))
			continue
		}
		kind, ok := s.Kind(condition.Field)
		if !ok {
			errs = append(errs, fmt.Errorf("condition %d: %s has no field %q", i, s.EntityType, condition.Field))
			continue
		}
		if condition.Operator.IsNumeric() && kind != KindNumber && kind != KindJSON {
			errs = append(errs, fmt.Errorf("condition %d: operator %s needs a numeric field, %q is %s", i, condition.Operator, condition.Field, kind))
		}
	}
	return errors.Join(errs...)
}

// Paths returns the known field paths in order.
func (s *Schema) Paths() []string {
	paths := make([]string, 0, len(s.Fields))
	for path := range s.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func kindOf(t reflect.Type) FieldKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return KindTime
	case t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8:
		return KindString
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	default:
		return KindJSON
	}
}
