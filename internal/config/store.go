// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config implements the typed, categorized, persisted key/value
// configuration store described in spec §4.A. It replaces the teacher's
// single compiled-in ProgramConfig struct (internal/config/config.go in
// the retrieved source tree) with a schema of runtime-resolved Entry
// descriptors so values can be get/set/reset/imported/exported by key,
// as spec.md requires, while keeping the teacher's JSON-Schema-validated
// persistence idiom.
package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/allenjin-login/usbthief/pkg/log"
)

// Format selects the wire encoding used by Export/Import.
type Format int

const (
	FormatProperties Format = iota
	FormatJSON
)

// Store holds the live value for every declared Entry. Reads share a
// read lock on the value map, so concurrent readers do not block each
// other and a read after Set returns the new value (spec §4.A: "any
// observer reading a value immediately after set returns the new
// value"); writes take the write lock and are serialized, matching the teacher's
// internal/repository/userConfig.go lock discipline.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New builds a Store with every declared entry set to its default.
func New() *Store {
	s := &Store{values: make(map[string]any, len(entries))}
	s.ResetAll()
	return s
}

// Get returns the current value for key, or an error if key is not
// declared in the schema.
func (s *Store) Get(key string) (any, error) {
	if _, ok := lookupEntry(key); !ok {
		return nil, fmt.Errorf("config: unknown key %q", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *Store) GetInt(key string) int {
	v, err := s.Get(key)
	if err != nil {
		return 0
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}

func (s *Store) GetLong(key string) int64 {
	v, err := s.Get(key)
	if err != nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

func (s *Store) GetBool(key string) bool {
	v, err := s.Get(key)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (s *Store) GetString(key string) string {
	v, err := s.Get(key)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

func (s *Store) GetStringList(key string) []string {
	v, err := s.Get(key)
	if err != nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return nil
	}
}

// Set validates v against the entry's declared type and stores it.
func (s *Store) Set(key string, v any) error {
	e, ok := lookupEntry(key)
	if !ok {
		return fmt.Errorf("config: unknown key %q", key)
	}

	coerced, err := coerce(e, v)
	if err != nil {
		return fmt.Errorf("config: set %q: %w", key, err)
	}

	s.mu.Lock()
	s.values[key] = coerced
	s.mu.Unlock()
	return nil
}

// Reset restores a single entry to its declared default.
func (s *Store) Reset(key string) error {
	e, ok := lookupEntry(key)
	if !ok {
		return fmt.Errorf("config: unknown key %q", key)
	}
	s.mu.Lock()
	s.values[key] = e.Default
	s.mu.Unlock()
	return nil
}

// ResetAll restores every entry to its declared default. Not atomic
// across keys relative to concurrent Set calls, consistent with spec's
// "not transactional across keys" contract.
func (s *Store) ResetAll() {
	s.mu.Lock()
	for _, e := range entries {
		s.values[e.Key] = e.Default
	}
	s.mu.Unlock()
}

func coerce(e Entry, v any) (any, error) {
	switch e.Type {
	case TypeInt:
		switch t := v.(type) {
		case int:
			return t, nil
		case float64:
			return int(t), nil
		case string:
			n, err := strconv.Atoi(t)
			return n, err
		}
	case TypeLong:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int:
			return int64(t), nil
		case float64:
			return int64(t), nil
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			return n, err
		}
	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			return b, err
		}
	case TypeString:
		if t, ok := v.(string); ok {
			return t, nil
		}
	case TypeStringList:
		switch t := v.(type) {
		case []string:
			return t, nil
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("string-list element is not a string: %v", item)
				}
				out = append(out, s)
			}
			return out, nil
		case string:
			if t == "" {
				return []string{}, nil
			}
			return strings.Split(t, ","), nil
		}
	}
	return nil, fmt.Errorf("value %v is not assignable to %s", v, e.Type)
}

// --- Export / Import ---

type jsonEntry struct {
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Description string `json:"description"`
}

type jsonDocument struct {
	Version    int                             `json:"version"`
	Categories map[string]map[string]jsonEntry `json:"categories"`
}

// Export serializes the full current state in the requested Format.
// export→import→export is byte-equivalent for both formats (spec §8
// round-trip property): property lines are emitted in schema-declaration
// order and string-lists are comma-joined deterministically; the JSON
// form marshals nested maps via encoding/json, which writes map keys in
// sorted (alphabetical) order, so the output is stable between encodes.
func (s *Store) Export(format Format) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch format {
	case FormatProperties:
		var buf bytes.Buffer
		for _, e := range entries {
			fmt.Fprintf(&buf, "%s=%s\n", e.Key, formatValue(e.Type, s.values[e.Key]))
		}
		return buf.Bytes(), nil

	case FormatJSON:
		doc := jsonDocument{Version: 1, Categories: map[string]map[string]jsonEntry{}}
		for _, e := range entries {
			cat, ok := doc.Categories[e.Category]
			if !ok {
				cat = map[string]jsonEntry{}
				doc.Categories[e.Category] = cat
			}
			cat[e.Key] = jsonEntry{
				Value:       s.values[e.Key],
				Default:     e.Default,
				Description: e.Description,
			}
		}
		return json.MarshalIndent(doc, "", "  ")

	default:
		return nil, fmt.Errorf("config: unknown export format %d", format)
	}
}

func formatValue(t ValueType, v any) string {
	switch t {
	case TypeStringList:
		list, _ := v.([]string)
		return strings.Join(list, ",")
	default:
		return fmt.Sprint(v)
	}
}

// Import parses data in the requested Format and applies every value
// found to the store. Unknown keys are reported via the error channel
// (spec §7: "Index corruption on load: start empty, log severe" is the
// closest analogous contract: a malformed or unknown-key document
// is rejected wholesale and the store is left untouched) rather than
// partially applied.
func (s *Store) Import(format Format, data []byte) error {
	switch format {
	case FormatProperties:
		pending := map[string]any{}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("config: malformed property line %q", line)
			}
			key, raw := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			e, ok := lookupEntry(key)
			if !ok {
				return fmt.Errorf("config: unknown key %q", key)
			}
			v, err := coerce(e, raw)
			if err != nil {
				return fmt.Errorf("config: %q: %w", key, err)
			}
			pending[key] = v
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		s.applyAll(pending)
		return nil

	case FormatJSON:
		if err := validateJSON(data); err != nil {
			log.Errorf("config: import validation failed: %v", err)
			return err
		}
		var doc jsonDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("config: decode json: %w", err)
		}
		pending := map[string]any{}
		for _, cat := range doc.Categories {
			for key, je := range cat {
				e, ok := lookupEntry(key)
				if !ok {
					return fmt.Errorf("config: unknown key %q", key)
				}
				v, err := coerce(e, je.Value)
				if err != nil {
					return fmt.Errorf("config: %q: %w", key, err)
				}
				pending[key] = v
			}
		}
		s.applyAll(pending)
		return nil

	default:
		return fmt.Errorf("config: unknown import format %d", format)
	}
}

func (s *Store) applyAll(pending map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range pending {
		s.values[k] = v
	}
}

// Categories returns the declared category names, alphabetically sorted.
func Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out
}
