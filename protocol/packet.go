// Package protocol implements the dvnet datagram format.
//
// A datagram is laid out as
//
//	[4-byte big-endian header length][CBOR header][raw payload]
//
// The header carries a CRC-32 of the payload which receivers recompute and
// compare for exact equality.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type PacketType uint8

const (
	Data PacketType = iota + 1
	Ack
	DistanceVector
)

func (t PacketType) String() string {
	switch t {
	case Data:
		return "DATA"
	case Ack:
		return "ACK"
	case DistanceVector:
		return "DV"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

func (t PacketType) Valid() bool {
	return t >= Data && t <= DistanceVector
}

// HeaderLenSize is the size of the length prefix in front of the header
const HeaderLenSize = 4

// AckPayload is the fixed acknowledgement marker carried by ACK packets
var AckPayload = []byte("ACK")

var ErrMalformedPacket = errors.New("malformed packet")

type Header struct {
	Type     PacketType `cbor:"1,keyasint"`
	Seq      uint32     `cbor:"2,keyasint"`
	Total    uint32     `cbor:"3,keyasint"` // segment count for DATA, 1 otherwise
	Src      string     `cbor:"4,keyasint"`
	Dst      string     `cbor:"5,keyasint"`
	TTL      int32      `cbor:"6,keyasint"` // hop limit
	Checksum uint32     `cbor:"7,keyasint"`
	// Transfer tells apart consecutive transfers between the same pair of
	// nodes. ACKs echo the id of the segment they acknowledge.
	Transfer uuid.UUID `cbor:"8,keyasint"`
}

func (h Header) String() string {
	return fmt.Sprintf("%s seq=%d/%d %s->%s ttl=%d", h.Type, h.Seq, h.Total, h.Src, h.Dst, h.TTL)
}

// Valid reports whether payload matches the checksum recorded in the header
func (h *Header) Valid(payload []byte) bool {
	return h.Checksum == Checksum(payload)
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// NewPacket builds a datagram outside of any transfer, filling in the
// payload checksum
func NewPacket(typ PacketType, seq, total uint32, src, dst string, ttl int32, payload []byte) []byte {
	return Seal(&Header{
		Type:  typ,
		Seq:   seq,
		Total: total,
		Src:   src,
		Dst:   dst,
		TTL:   ttl,
	}, payload)
}

// Seal records the payload checksum in h and encodes the datagram
func Seal(h *Header, payload []byte) []byte {
	h.Checksum = Checksum(payload)
	return Encode(h, payload)
}

// Encode serializes the header and payload as-is. The checksum field is not
// recomputed, so relays can re-encode a received header without touching it.
func Encode(h *Header, payload []byte) []byte {
	hdr, err := encMode.Marshal(h)
	if err != nil {
		// a Header only holds integers, strings and a fixed-size id
		panic(fmt.Sprintf("protocol: encode header: %v", err))
	}
	buf := make([]byte, HeaderLenSize, HeaderLenSize+len(hdr)+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(hdr)))
	buf = append(buf, hdr...)
	return append(buf, payload...)
}

// Decode parses a datagram. The returned payload aliases buf.
func Decode(buf []byte) (Header, []byte, error) {
	var h Header
	if len(buf) < HeaderLenSize {
		return h, nil, fmt.Errorf("%w: %d bytes is shorter than the length prefix", ErrMalformedPacket, len(buf))
	}
	hLen := binary.BigEndian.Uint32(buf)
	if uint64(hLen) > uint64(len(buf)-HeaderLenSize) {
		return h, nil, fmt.Errorf("%w: header length %d exceeds datagram of %d bytes", ErrMalformedPacket, hLen, len(buf))
	}
	end := HeaderLenSize + int(hLen)
	if err := cbor.Unmarshal(buf[HeaderLenSize:end], &h); err != nil {
		return h, nil, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	if !h.Type.Valid() {
		return h, nil, fmt.Errorf("%w: unknown packet type %d", ErrMalformedPacket, h.Type)
	}
	return h, buf[end:], nil
}
