// Package cli implements the golem command line.
// This file contains id and value parsing and JSON output helpers.
package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID reads a command line id: 24 hex characters are an ObjectID,
// anything else is a string id.
func ParseID(raw string) any {
	if len(raw) == 24 {
		if id, err := primitive.ObjectIDFromHex(raw); err == nil {
			return id
		}
	}
	return raw
}

// ParseValue decodes a JSON command line value. Integral numbers become
// int64 and other numbers float64.
func ParseValue(raw string) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if decoder.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return convertNumbers(value), nil
}

func convertNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = convertNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = convertNumbers(item)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	}
	return value
}

// writeJSON writes value as one line of JSON, or indented when pretty.
func writeJSON(w io.Writer, value any, pretty bool) error {
	var (
		raw []byte
		err error
	)
	if pretty {
		raw, err = json.MarshalIndent(value, "", "  ")
	} else {
		raw, err = json.Marshal(value)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
