package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Vector is the payload of a DV packet: destination -> advertised cost
type Vector map[string]uint32

func EncodeVector(v Vector) []byte {
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode vector: %v", err))
	}
	return b
}

func DecodeVector(payload []byte) (Vector, error) {
	v := make(Vector)
	if err := cbor.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: vector: %w", ErrMalformedPacket, err)
	}
	return v, nil
}
