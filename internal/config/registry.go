// Package config provides the runtime configuration registry.
//
// Lookup precedence is runtime override > environment > built-in
// default, which maps directly onto viper's explicit-set > env >
// default ordering. Every key declares a schema and values are coerced
// eagerly, so callers always see the declared type.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Schema declares the value type of a registered key.
type Schema int

const (
	SchemaString Schema = iota
	SchemaBool
	SchemaInt
	SchemaFloat
	SchemaJSON
)

func (s Schema) String() string {
	switch s {
	case SchemaBool:
		return "bool"
	case SchemaInt:
		return "int"
	case SchemaFloat:
		return "float"
	case SchemaJSON:
		return "json"
	default:
		return "string"
	}
}

// Key is one registered configuration entry. EnvAliases lists extra
// environment variable names honored after the canonical one.
type Key struct {
	Category   string
	Name       string
	Schema     Schema
	Default    any
	EnvAliases []string
}

func (k Key) path() string {
	return k.Category + "." + k.Name
}

// EnvName returns the environment variable consulted for this key.
func (k Key) EnvName() string {
	return strings.ToUpper(k.Category) + "_" + strings.ToUpper(k.Name)
}

// Registry resolves (category, key) lookups against runtime overrides,
// the environment, and built-in defaults.
type Registry struct {
	mu   sync.RWMutex
	v    *viper.Viper
	keys map[string]Key
}

// New builds a registry over the given key set. Environment values are
// bound and eagerly validated; a malformed env value for a typed key is
// reported immediately rather than at first use.
func New(keys []Key) (*Registry, error) {
	r := &Registry{
		v:    viper.New(),
		keys: make(map[string]Key, len(keys)),
	}

	for _, k := range keys {
		p := k.path()
		if _, dup := r.keys[p]; dup {
			return nil, fmt.Errorf("config: duplicate key %q", p)
		}
		r.keys[p] = k
		r.v.SetDefault(p, k.Default)
		envs := append([]string{p, k.EnvName()}, k.EnvAliases...)
		if err := r.v.BindEnv(envs...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k.EnvName(), err)
		}
	}

	// Eager pass: coerce every key once so schema violations surface
	// at startup.
	for _, k := range keys {
		if _, err := r.coerce(k, r.v.Get(k.path())); err != nil {
			return nil, fmt.Errorf("config: %s: %w", k.EnvName(), err)
		}
	}

	return r, nil
}

// coerce converts a raw value to the key's declared schema.
func (r *Registry) coerce(k Key, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch k.Schema {
	case SchemaBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("want bool, got %q", v)
			}
			return b, nil
		case int:
			return v != 0, nil
		}
	case SchemaInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("want int, got %q", v)
			}
			return i, nil
		}
	case SchemaFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("want float, got %q", v)
			}
			return f, nil
		}
	case SchemaJSON:
		switch v := raw.(type) {
		case string:
			t := strings.TrimSpace(v)
			if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
				var parsed any
				if err := json.Unmarshal([]byte(t), &parsed); err == nil {
					return parsed, nil
				}
				// Unparseable JSON literal stays a string, per the
				// permissive env contract.
			}
			return v, nil
		default:
			return raw, nil
		}
	case SchemaString:
		switch v := raw.(type) {
		case string:
			return v, nil
		default:
			return fmt.Sprintf("%v", raw), nil
		}
	}
	return nil, fmt.Errorf("want %s, got %T", k.Schema, raw)
}

func (r *Registry) lookup(category, name string) (Key, any, error) {
	p := category + "." + name
	r.mu.RLock()
	k, ok := r.keys[p]
	r.mu.RUnlock()
	if !ok {
		return Key{}, nil, fmt.Errorf("config: unknown key %q", p)
	}
	val, err := r.coerce(k, r.v.Get(p))
	return k, val, err
}

// Get returns the schema-coerced value for a key.
func (r *Registry) Get(category, name string) (any, error) {
	_, v, err := r.lookup(category, name)
	return v, err
}

// Set installs a runtime override after validating it against the
// key's schema. Overrides win over environment and defaults.
func (r *Registry) Set(category, name string, value any) error {
	p := category + "." + name
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[p]
	if !ok {
		return fmt.Errorf("config: unknown key %q", p)
	}
	coerced, err := r.coerce(k, value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", p, err)
	}
	r.v.Set(p, coerced)
	return nil
}

// String returns a string-typed key, or its zero value on any error.
func (r *Registry) String(category, name string) string {
	_, v, err := r.lookup(category, name)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns a bool-typed key.
func (r *Registry) Bool(category, name string) bool {
	_, v, err := r.lookup(category, name)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Int returns an int-typed key.
func (r *Registry) Int(category, name string) int {
	_, v, err := r.lookup(category, name)
	if err != nil {
		return 0
	}
	i, _ := v.(int)
	return i
}

// Float returns a float-typed key.
func (r *Registry) Float(category, name string) float64 {
	_, v, err := r.lookup(category, name)
	if err != nil {
		return 0
	}
	f, _ := v.(float64)
	return f
}

// Category returns every key of a category with resolved values.
func (r *Registry) Category(category string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any)
	for p, k := range r.keys {
		if k.Category != category {
			continue
		}
		if v, err := r.coerce(k, r.v.Get(p)); err == nil {
			out[k.Name] = v
		}
	}
	return out
}

// ValidateRequired checks that every listed key resolves to a
// non-empty value, reporting all missing entries at once.
func (r *Registry) ValidateRequired(required map[string][]string) error {
	var missing []string
	for category, names := range required {
		for _, name := range names {
			_, v, err := r.lookup(category, name)
			if err != nil || v == nil || v == "" {
				missing = append(missing, Key{Category: category, Name: name}.EnvName())
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
