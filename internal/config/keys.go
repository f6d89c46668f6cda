// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.url").
// Nil pointers are returned as nil.
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		field = field.Elem()
	}
	return field.Interface(), nil
}

// GetString formats the value at key for display.
func (c *Config) GetString(key string) (string, error) {
	v, err := c.Get(key)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		return string(b), err
	case map[string]string:
		pairs := make([]string, 0, len(t))
		for k, val := range t {
			pairs = append(pairs, k+"="+val)
		}
		sort.Strings(pairs)
		return strings.Join(pairs, ","), nil
	default:
		return fmt.Sprint(t), nil
	}
}

// Set sets a configuration value using dot notation (e.g., "retry.max_retries").
// String values are converted to the field type. An empty string clears an
// optional value.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks toml tag names to the addressed field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct && !isLeafStruct(field) {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct || isLeafStruct(field) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// isLeafStruct reports whether a struct field is a single value, like Duration.
func isLeafStruct(v reflect.Value) bool {
	_, ok := v.Addr().Interface().(encoding.TextUnmarshaler)
	return ok
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		return setFromString(field, strings.TrimSpace(strVal))
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if field.Kind() == reflect.Ptr && val.Type().ConvertibleTo(field.Type().Elem()) {
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(val.Convert(field.Type().Elem()))
		field.Set(p)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func setFromString(field reflect.Value, s string) error {
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(s))
	}

	switch field.Kind() {
	case reflect.Ptr:
		if s == "" {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		p := reflect.New(field.Type().Elem())
		if err := setFromString(p.Elem(), s); err != nil {
			return err
		}
		field.Set(p)
		return nil
	case reflect.String:
		field.SetString(s)
		return nil
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		field.SetInt(n)
		return nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %v", err)
		}
		field.SetFloat(f)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			switch strings.ToLower(s) {
			case "yes", "on":
				b = true
			case "no", "off":
				b = false
			default:
				return fmt.Errorf("invalid boolean value: %q", s)
			}
		}
		field.SetBool(b)
		return nil
	case reflect.Map:
		// key=value pairs separated by commas
		m := reflect.MakeMap(field.Type())
		if s != "" {
			for _, pair := range strings.Split(s, ",") {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid pair %q, want key=value", pair)
				}
				m.SetMapIndex(reflect.ValueOf(strings.TrimSpace(k)), reflect.ValueOf(strings.TrimSpace(v)))
			}
		}
		field.Set(m)
		return nil
	}
	return fmt.Errorf("cannot set %s from a string", field.Type())
}

// =============================================================================
// KEY LISTING
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.ValueOf(Default()).Elem(), "", &keys)
	return keys
}

func collectKeys(v reflect.Value, prefix string, keys *[]string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := prefix + tagName(t.Field(i))
		field := v.Field(i)
		if field.Kind() == reflect.Struct && !isLeafStruct(field) {
			collectKeys(field, name+".", keys)
			continue
		}
		*keys = append(*keys, name)
	}
}
