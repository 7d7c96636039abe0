package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// IDSet is a set of record ids kept sorted and free of duplicates.
//
// Stored data reaches us in several shapes (numbers, numeric strings, a
// comma-separated string, or a JSON array encoded inside a string). Decoding
// normalizes all of them once so nothing past the boundary sees the raw form.
type IDSet []uint

// NewIDSet builds a normalized set from ids.
func NewIDSet(ids ...uint) IDSet {
	s := IDSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id uint) bool {
	_, ok := slices.BinarySearch(s, id)
	return ok
}

// Add inserts id and reports whether the set changed.
func (s *IDSet) Add(id uint) bool {
	i, ok := slices.BinarySearch(*s, id)
	if ok {
		return false
	}
	*s = slices.Insert(*s, i, id)
	return true
}

// Remove deletes id and reports whether the set changed.
func (s *IDSet) Remove(id uint) bool {
	i, ok := slices.BinarySearch(*s, id)
	if !ok {
		return false
	}
	*s = slices.Delete(*s, i, i+1)
	return true
}

// Len returns the number of ids.
func (s IDSet) Len() int { return len(s) }

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return IDSet{}
	}
	return slices.Clone(s)
}

// MarshalJSON always emits an array, never null.
func (s IDSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]uint(s))
}

// UnmarshalJSON accepts an array of numbers or numeric strings, or a string
// holding either a comma-separated list or a JSON array.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = IDSet{}
		return nil
	}

	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		return s.parseString(raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("id set: %w", err)
	}
	out := IDSet{}
	for _, item := range items {
		id, err := parseRawID(item)
		if err != nil {
			return err
		}
		out.Add(id)
	}
	*s = out
	return nil
}

// UnmarshalYAML applies the same normalization for fixture files.
func (s *IDSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return s.parseString(node.Value)
	case yaml.SequenceNode:
		out := IDSet{}
		for _, item := range node.Content {
			id, err := parseID(item.Value)
			if err != nil {
				return err
			}
			out.Add(id)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("id set: unsupported yaml node kind %d", node.Kind)
	}
}

func (s *IDSet) parseString(raw string) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		return s.UnmarshalJSON([]byte(raw))
	}
	out := IDSet{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(part)
		if err != nil {
			return err
		}
		out.Add(id)
	}
	*s = out
	return nil
}

func parseRawID(raw json.RawMessage) (uint, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return parseID(str)
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil || n == 0 {
		return 0, fmt.Errorf("id set: invalid id %s", string(raw))
	}
	return uint(n), nil
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("id set: invalid id %q", s)
	}
	return uint(n), nil
}
