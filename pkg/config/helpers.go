package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// maskedValue replaces secrets in ToMap output. GetValue still returns them.
const maskedValue = "********"

// Keys returns every dotted configuration key, e.g. "download.retry_attempts", in sorted order.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap flattens the configuration into dotted keys for display. Secret values are masked.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	sections := reflect.ValueOf(c).Elem()
	sectionTypes := sections.Type()

	for i := 0; i < sections.NumField(); i++ {
		section := sections.Field(i)
		sectionName := yamlKey(sectionTypes.Field(i))
		for j := 0; j < section.NumField(); j++ {
			field := section.Type().Field(j)
			key := sectionName + "." + yamlKey(field)
			result[key] = formatValue(section.Field(j))
			if field.Tag.Get("secret") == "true" && result[key] != "" {
				result[key] = maskedValue
			}
		}
	}
	return result
}

// GetValue returns the value stored under a dotted key.
func (c *Config) GetValue(key string) (string, error) {
	field, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

// SetValue parses value into the field named by a dotted key and re-validates the result.
// The previous value is restored when validation fails.
func (c *Config) SetValue(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}

	previous := reflect.New(field.Type()).Elem()
	previous.Set(field)

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %s", key, value)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported configuration key type for %s: %s", key, field.Kind())
	}

	if err := c.Validate(); err != nil {
		field.Set(previous)
		return err
	}
	return nil
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	sectionName, fieldName, ok := strings.Cut(key, ".")
	if !ok {
		return reflect.Value{}, fmt.Errorf("unknown configuration key: %s", key)
	}

	sections := reflect.ValueOf(c).Elem()
	for i := 0; i < sections.NumField(); i++ {
		if yamlKey(sections.Type().Field(i)) != sectionName {
			continue
		}
		section := sections.Field(i)
		for j := 0; j < section.NumField(); j++ {
			if yamlKey(section.Type().Field(j)) == fieldName {
				return section.Field(j), nil
			}
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown configuration key: %s", key)
}

// yamlKey handles yaml tags with options (e.g., "name,omitempty").
func yamlKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return strings.Split(tag, ",")[0]
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
