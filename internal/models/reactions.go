package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Reactions maps an emoji to the users holding it. A user appears in at most
// one bucket, and buckets are never kept empty.
type Reactions map[string]IDSet

// Set moves userID into the emoji bucket and returns the emoji the user held
// before ("" when none).
func (r Reactions) Set(userID uint, emoji string) string {
	previous := r.Clear(userID)
	bucket := r[emoji]
	bucket.Add(userID)
	r[emoji] = bucket
	return previous
}

// Clear removes userID from every bucket and returns the emoji it held.
func (r Reactions) Clear(userID uint) string {
	previous := ""
	for emoji, bucket := range r {
		if bucket.Remove(userID) {
			previous = emoji
		}
		if bucket.Len() == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = bucket
		}
	}
	return previous
}

// EmojiOf returns the emoji held by userID, or "".
func (r Reactions) EmojiOf(userID uint) string {
	for emoji, bucket := range r {
		if bucket.Contains(userID) {
			return emoji
		}
	}
	return ""
}

// Emojis lists the emojis that currently have reactions, sorted.
func (r Reactions) Emojis() []string {
	out := make([]string, 0, len(r))
	for emoji := range r {
		out = append(out, emoji)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, bucket := range r {
		out[emoji] = bucket.Clone()
	}
	return out
}

// normalize enforces the one-bucket-per-user and no-empty-bucket rules on
// data loaded from outside. When a user shows up under several emojis the
// lexically last bucket wins so the result is deterministic.
func (r Reactions) normalize() {
	owner := make(map[uint]string)
	for _, emoji := range r.Emojis() {
		for _, id := range r[emoji] {
			owner[id] = emoji
		}
	}
	for emoji, bucket := range r {
		kept := IDSet{}
		for _, id := range bucket {
			if owner[id] == emoji {
				kept.Add(id)
			}
		}
		if kept.Len() == 0 {
			delete(r, emoji)
			continue
		}
		r[emoji] = kept
	}
}

// UnmarshalJSON accepts an object or a string holding an encoded object.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Reactions{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*r = Reactions{}
			return nil
		}
		return r.UnmarshalJSON([]byte(raw))
	}

	var m map[string]IDSet
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("reactions: %w", err)
	}
	out := Reactions(m)
	if out == nil {
		out = Reactions{}
	}
	out.normalize()
	*r = out
	return nil
}

// UnmarshalYAML applies the same normalization for fixture files.
func (r *Reactions) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]IDSet
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("reactions: %w", err)
	}
	out := Reactions(m)
	if out == nil {
		out = Reactions{}
	}
	out.normalize()
	*r = out
	return nil
}
