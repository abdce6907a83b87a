package codec

import (
	"bytes"
	"encoding/gob"
)

// GobBackend is a fallback backend for internal, Go-only message types
// that never cross into a non-Go client, so no interchange schema is
// needed.
type GobBackend struct{}

func NewGobBackend() *GobBackend { return &GobBackend{} }

func (c *GobBackend) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GobBackend) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
