package codec

import "encoding/json"

// JSONBackend backs message families whose schema is most naturally a
// tagged Go struct shared with tooling outside the proxy.
type JSONBackend struct{}

func NewJSONBackend() *JSONBackend { return &JSONBackend{} }

func (c *JSONBackend) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONBackend) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
