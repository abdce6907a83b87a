package codec

import "github.com/gogo/protobuf/proto"

// ProtobufBackend wraps gogo/protobuf for message families defined as
// protobuf messages.
type ProtobufBackend struct{}

func NewProtobufBackend() *ProtobufBackend { return &ProtobufBackend{} }

func (c *ProtobufBackend) Encode(v any) ([]byte, error) {
	return proto.Marshal(v.(proto.Message))
}

func (c *ProtobufBackend) Decode(data []byte, v any) error {
	return proto.Unmarshal(data, v.(proto.Message))
}
