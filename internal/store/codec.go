package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Encode flattens a tagged struct into a Row. Pointers are dereferenced, nil
// pointers become nil unless the field is omitempty, and embedded structs are
// inlined. Column names come from json tags.
func Encode(v any) (Row, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("encode: nil %T", v)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		if row, ok := rv.Interface().(Row); ok {
			return copyRow(row), nil
		}
		if m, ok := rv.Interface().(map[string]any); ok {
			return copyRow(m), nil
		}
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("encode: unsupported kind %s", rv.Kind())
	}
	row := Row{}
	encodeStruct(rv, row)
	return row, nil
}

func encodeStruct(rv reflect.Value, row Row) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)

		if field.Anonymous && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				encodeStruct(fv, row)
				continue
			}
		}
		if name == "" {
			name = field.Name
		}
		omitEmpty := strings.Contains(opts, "omitempty")
		if omitEmpty && fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				row[name] = nil
				continue
			}
			fv = fv.Elem()
		}
		row[name] = fv.Interface()
	}
}

func copyRow(in map[string]any) Row {
	out := make(Row, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Decode converts a Row into a tagged struct through its JSON form.
func Decode[T any](row Row) (T, error) {
	var out T
	raw, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

func DecodeRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := Decode[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// String returns the column as a string, or "" when absent or not a string.
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
