package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category is one key/value descriptive dimension of a capture
type Category struct {
	Key   string
	Value string
}

// Categories is an ordered key/value list. It encodes as a JSON object
// whose member order matches the list order.
type Categories []Category

// Get returns the value for key and whether it is present
func (c Categories) Get(key string) (string, bool) {
	for _, cat := range c {
		if cat.Key == key {
			return cat.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key in place or appends it
func (c Categories) Set(key, value string) Categories {
	for i := range c {
		if c[i].Key == key {
			c[i].Value = value
			return c
		}
	}
	return append(c, Category{Key: key, Value: value})
}

// Values returns the values in order
func (c Categories) Values() []string {
	out := make([]string, 0, len(c))
	for _, cat := range c {
		out = append(out, cat.Value)
	}
	return out
}

func (c Categories) Clone() Categories {
	if c == nil {
		return nil
	}
	out := make(Categories, len(c))
	copy(out, c)
	return out
}

func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cat.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(cat.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Categories) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories: expected object, got %v", tok)
	}
	out := Categories{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("categories: expected key, got %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("categories: value for %q: %w", key, err)
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
