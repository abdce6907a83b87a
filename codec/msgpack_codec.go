package codec

import "github.com/vmihailenco/msgpack/v5"

// MsgpackBackend serves message families with no protobuf/Thrift
// schema of their own.
type MsgpackBackend struct{}

func NewMsgpackBackend() *MsgpackBackend { return &MsgpackBackend{} }

func (c *MsgpackBackend) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackBackend) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
