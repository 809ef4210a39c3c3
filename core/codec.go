package core

// Codec is how callers tell a container how to turn a Go value of type T
// into its canonical on-disk byte form and back, along with the
// compile-time-known maximum encoded size for that type. Go generics have
// no way to attach a constant to a type parameter, so where spec.md
// describes `K::MAX`/`V::MAX` as associated constants, canisdk instead
// takes a Codec value at container construction time (an Open Question
// resolution — see DESIGN.md).
type Codec[T any] struct {
	// MaxSize is the maximum number of bytes Encode can ever produce for a
	// value of this type.
	MaxSize int
	Encode  func(T) []byte
	Decode  func([]byte) T
}

// FixedUint32Codec encodes a uint32 as 4 big-endian bytes. Useful for
// scheduler task ids and other integer keys.
func FixedUint32Codec() Codec[uint32] {
	return Codec[uint32]{
		MaxSize: 4,
		Encode: func(v uint32) []byte {
			b := make([]byte, 4)
			b[0] = byte(v >> 24)
			b[1] = byte(v >> 16)
			b[2] = byte(v >> 8)
			b[3] = byte(v)
			return b
		},
		Decode: func(b []byte) uint32 {
			return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		},
	}
}

// FixedUint64Codec encodes a uint64 as 8 big-endian bytes.
func FixedUint64Codec() Codec[uint64] {
	return Codec[uint64]{
		MaxSize: 8,
		Encode: func(v uint64) []byte {
			b := make([]byte, 8)
			for i := 7; i >= 0; i-- {
				b[i] = byte(v)
				v >>= 8
			}
			return b
		},
		Decode: func(b []byte) uint64 {
			var v uint64
			for i := 0; i < 8; i++ {
				v = v<<8 | uint64(b[i])
			}
			return v
		},
	}
}

// BytesCodec encodes a []byte value up to maxSize bytes, right-padded with
// zero on disk and truncated to its stored length on decode via a 2-byte
// length prefix stored in addition to maxSize (MaxSize is maxSize+2).
func BytesCodec(maxSize int) Codec[[]byte] {
	return Codec[[]byte]{
		MaxSize: maxSize + 2,
		Encode: func(v []byte) []byte {
			out := make([]byte, 2+len(v))
			out[0] = byte(len(v) >> 8)
			out[1] = byte(len(v))
			copy(out[2:], v)
			return out
		},
		Decode: func(b []byte) []byte {
			n := int(b[0])<<8 | int(b[1])
			out := make([]byte, n)
			copy(out, b[2:2+n])
			return out
		},
	}
}

// StringCodec encodes a string the same way BytesCodec encodes []byte.
func StringCodec(maxSize int) Codec[string] {
	inner := BytesCodec(maxSize)
	return Codec[string]{
		MaxSize: inner.MaxSize,
		Encode:  func(v string) []byte { return inner.Encode([]byte(v)) },
		Decode:  func(b []byte) string { return string(inner.Decode(b)) },
	}
}
