package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeError reports a frame body that could not be read as a JSON object.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode push payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Payload is a decoded JSON object that remembers the order of its keys.
// Numbers are held as int64 when integral and float64 otherwise.
type Payload struct {
	keys   []string
	values map[string]interface{}
}

// Parse decodes a frame body. The body must be a JSON object.
func Parse(body []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &DecodeError{Err: fmt.Errorf("expected object, got %v", tok)}
	}

	p := &Payload{values: make(map[string]interface{})}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &DecodeError{Err: fmt.Errorf("unexpected key token %v", tok)}
		}
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("value of %q: %w", key, err)}
		}
		if _, seen := p.values[key]; !seen {
			p.keys = append(p.keys, key)
		}
		p.values[key] = normalize(raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return p, nil
}

// ParseValue decodes a frame body holding any single JSON value. Numbers are
// normalized as in Parse.
func ParseValue(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Err: errors.New("unexpected data after JSON value")}
	}
	return normalize(v), nil
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (interface{}, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in the order they appeared in the body.
func (p *Payload) Keys() []string {
	return p.keys
}

func (p *Payload) Len() int {
	return len(p.keys)
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}
