package config

import (
	"encoding/json"
	"reflect"
)

// sanitizeForKV marshals a configuration struct after removing any fields marked
// with `sensitive:"true"` tags, so the resulting JSON carries no field so
// tagged (upstream API keys, bearer tokens).
func sanitizeForKV(cfg interface{}) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}

	safe := filterSensitiveFields(reflect.ValueOf(cfg))

	return json.Marshal(safe)
}

// filterSensitiveFields walks a struct (or pointer to struct) and returns a
// map[string]interface{} with any field tagged `sensitive:"true"` omitted.
// Non-struct values are returned unchanged.
func filterSensitiveFields(v reflect.Value) interface{} {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}

		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return v.Interface()
	}

	t := v.Type()
	out := make(map[string]interface{}, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !v.Field(i).CanInterface() {
			continue
		}

		if field.Tag.Get("sensitive") == "true" {
			continue
		}

		name := field.Tag.Get("json")
		if name == "" {
			name = field.Name
		} else if idx := indexOfComma(name); idx >= 0 {
			name = name[:idx]
		}

		if name == "-" {
			continue
		}

		fv := v.Field(i)
		if fv.Kind() == reflect.Struct || (fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct) {
			out[name] = filterSensitiveFields(fv)
		} else {
			out[name] = fv.Interface()
		}
	}

	return out
}

func indexOfComma(s string) int {
	for i, r := range s {
		if r == ',' {
			return i
		}
	}

	return -1
}
