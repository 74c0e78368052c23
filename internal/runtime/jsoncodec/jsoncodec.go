// Package jsoncodec centralises JSON encoding for dead-letter snapshots,
// transport bridge payloads, and cache keys.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// MarshalString marshals v and returns the result as a string, falling back
// to an empty string on error. Used where a best-effort representation is
// acceptable, such as log fields.
func MarshalString(v any) string {
	data, err := Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
