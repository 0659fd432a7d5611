package grpcrunner

import "encoding/json"

// jsonCodecName is registered as a grpc content-subtype so calls can be made
// without a .proto-generated codec.
const jsonCodecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json, so this adapter can speak grpc framing to a runner backend
// without generated protobuf message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
