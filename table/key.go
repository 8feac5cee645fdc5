package table

import (
	"encoding/binary"
	"math"
)

// Primary keys are built so that all rows of one logical key are contiguous:
// the logical key is length prefixed, numeric parts use order-preserving encodings
// and the trailing part is kept raw so it sorts bytewise.

func appendKey(dst []byte, key string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(key)))
	return append(dst, key...)
}

// keyPrefix returns the leading part shared by all rows of key
func keyPrefix(key string) []byte {
	return appendKey(make([]byte, 0, binary.MaxVarintLen64+len(key)), key)
}

// appendInt64 flips the sign bit so negative numbers sort first
func appendInt64(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^(1<<63))
}

func decodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

// appendFloat64 maps IEEE 754 bits onto an unsigned order: positives get the sign bit set,
// negatives are inverted
func appendFloat64(dst []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func decodeFloat64(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
