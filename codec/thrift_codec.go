package codec

import thrifter "github.com/thrift-iterator/go"

// ThriftBackend backs message families carried over from a Thrift IDL.
type ThriftBackend struct{}

func NewThriftBackend() *ThriftBackend { return &ThriftBackend{} }

func (c *ThriftBackend) Encode(v any) ([]byte, error) {
	return thrifter.Marshal(v)
}

func (c *ThriftBackend) Decode(data []byte, v any) error {
	return thrifter.Unmarshal(data, v)
}
