package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator is implemented by config structs that need checks beyond the
// required/default tags. It runs after file and environment loading.
type Validator interface {
	Validate() error
}

// setFromString assigns raw to field according to the field's type. String
// slices are read as comma separated lists.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to duration: %w", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %q to int: %w", raw, err)
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %q to float: %w", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to bool: %w", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

func isTrue(tag string) bool {
	tag = strings.ToLower(tag)
	return tag == "true" || tag == "1"
}

// applyEnv walks val and overlays every field carrying an env tag whose
// variable is set. Nested structs are walked recursively.
func applyEnv(val reflect.Value, set map[string]bool) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field, meta := val.Field(i), typ.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, set); err != nil {
				return err
			}
			continue
		}
		name := meta.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if err := setFromString(field, raw); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		set[typ.Name()+"."+meta.Name] = true
	}
	return nil
}

// applyDefaults fills zero fields from their default tag and reports zero
// fields tagged required. A default tag makes required meaningless.
func applyDefaults(val reflect.Value, set map[string]bool) error {
	var result error
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field, meta := val.Field(i), typ.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaults(field, set); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}
		if !field.IsZero() || set[typ.Name()+"."+meta.Name] {
			continue
		}
		def, hasDefault := meta.Tag.Lookup("default")
		if hasDefault && def != "" {
			if err := setFromString(field, def); err != nil {
				result = multierror.Append(result, fmt.Errorf("default for %s: %w", meta.Name, err))
			}
			continue
		}
		if isTrue(meta.Tag.Get("required")) {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				meta.Tag.Get("env"), meta.Tag.Get("yaml")))
		}
	}
	return result
}

func validate[T any](dest *T) error {
	if v, ok := any(*dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// GetConfigFromEnvVars loads configuration from environment variables only,
// honouring the env, default and required struct tags.
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	set := make(map[string]bool)
	if err := applyEnv(val, set); err != nil {
		return err
	}
	if err := applyDefaults(val, set); err != nil {
		var zero T
		*dest = zero
		return err
	}
	return validate(dest)
}

// GetConfig loads a YAML file first and overlays environment variables on
// top. An empty path means environment only. With allowFileErrors set a
// missing or unparsable file falls back to environment only.
//
//	var cfg MyConfig
//	err := GetConfig(&cfg, "config.yaml", true)
func GetConfig[T any](dest *T, path string, allowFileErrors bool) error {
	if path == "" {
		return GetConfigFromEnvVars(dest)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if allowFileErrors {
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		if allowFileErrors {
			var zero T
			*dest = zero
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return GetConfigFromEnvVars(dest)
}
