// Package strictjson decodes JSON into Go structs while insisting that every
// field declared without omitempty is present and not null. Object keys must
// match the declared names exactly; any other key is ignored.
package strictjson

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("strictjson: target must be a non-nil pointer, got %T", v)
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return err
	}

	// encoding/json folds key case; only exact names may reach the decoder.
	document = prune(rv.Type().Elem(), document)
	exact, err := json.Marshal(document)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(exact, v); err != nil {
		return err
	}

	return checkRequired(rv.Type().Elem(), document, "")
}

// prune returns a copy of value in which every object decoded into a struct
// keeps only the keys that name one of its fields exactly.
func prune(t reflect.Type, value any) any {
	switch t.Kind() {
	case reflect.Pointer:
		return prune(t.Elem(), value)

	case reflect.Struct:
		object, ok := value.(map[string]any)
		if !ok {
			return value
		}
		kept := make(map[string]any, len(object))
		pruneStruct(t, object, kept)
		return kept

	case reflect.Slice, reflect.Array:
		items, ok := value.([]any)
		if !ok {
			return value
		}
		pruned := make([]any, len(items))
		for i, item := range items {
			pruned[i] = prune(t.Elem(), item)
		}
		return pruned

	case reflect.Map:
		object, ok := value.(map[string]any)
		if !ok {
			return value
		}
		pruned := make(map[string]any, len(object))
		for key, item := range object {
			pruned[key] = prune(t.Elem(), item)
		}
		return pruned
	}

	return value
}

func pruneStruct(t reflect.Type, object, kept map[string]any) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, _, skip := jsonField(field)
		if skip {
			continue
		}

		if field.Anonymous && name == field.Name && field.Type.Kind() == reflect.Struct {
			pruneStruct(field.Type, object, kept)
			continue
		}

		if value, ok := object[name]; ok {
			kept[name] = prune(field.Type, value)
		}
	}
}

func checkRequired(t reflect.Type, value any, path string) error {
	switch t.Kind() {
	case reflect.Pointer:
		if value == nil {
			return nil
		}
		return checkRequired(t.Elem(), value, path)

	case reflect.Struct:
		object, ok := value.(map[string]any)
		if !ok {
			return &FieldError{Path: path, Reason: "expected an object"}
		}
		return checkStruct(t, object, path)

	case reflect.Slice, reflect.Array:
		items, ok := value.([]any)
		if !ok {
			return nil
		}
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil && !nullable(t.Elem()) {
				return &FieldError{Path: itemPath, Reason: "must not be null"}
			}
			if err := checkRequired(t.Elem(), item, itemPath); err != nil {
				return err
			}
		}

	case reflect.Map:
		object, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		for key, item := range object {
			if item == nil {
				continue
			}
			if err := checkRequired(t.Elem(), item, join(path, key)); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkStruct(t reflect.Type, object map[string]any, path string) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, optional, skip := jsonField(field)
		if skip {
			continue
		}

		if field.Anonymous && name == field.Name && field.Type.Kind() == reflect.Struct {
			if err := checkStruct(field.Type, object, path); err != nil {
				return err
			}
			continue
		}

		fieldPath := join(path, name)
		value, present := object[name]
		if !present || value == nil {
			if optional || (present && nullable(field.Type)) {
				continue
			}
			if !present {
				return &FieldError{Path: fieldPath, Reason: "missing required field"}
			}
			return &FieldError{Path: fieldPath, Reason: "must not be null"}
		}

		if err := checkRequired(field.Type, value, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func jsonField(field reflect.StructField) (name string, optional bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}

	name = field.Name
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			optional = true
		}
	}
	return name, optional, false
}

func nullable(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
