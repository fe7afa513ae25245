// Package env exposes the injected environment mapping.
package env

import (
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// Map is an immutable string to string mapping populated once at startup.
type Map struct {
	vars map[string]string
}

// New copies vars into a new Map. Later changes to vars are not observed.
func New(vars map[string]string) *Map {
	m := &Map{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

// Parse decodes an injected JSON object literal of string values.
func Parse(literal []byte) (*Map, error) {
	if len(literal) == 0 {
		return New(nil), nil
	}
	var vars map[string]string
	if err := sonic.Unmarshal(literal, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse environment literal: %w", err)
	}
	return New(vars), nil
}

// Get returns the value for key, or "" when absent.
func (m *Map) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it was present.
func (m *Map) Lookup(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.vars[key]
	return v, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.vars)
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.vars))
	for k := range m.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the mapping.
func (m *Map) Snapshot() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}
