package corelog

import (
	"encoding/binary"

	"canisdk/core"
)

// Level mirrors logrus's severity levels, kept as its own small enum so the
// persisted Record encoding does not depend on logrus's own (larger, and
// unstable across versions) type.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Record is one emitted log line as retained by the in-memory ring sink.
type Record struct {
	TimestampNanos uint64
	Level          Level
	Target         string // e.g. "crate::mod" in filter syntax
	Message        string
}

// RecordCodec returns a fixed-size codec for Record bounded by maxLen bytes
// for Target+Message combined.
func RecordCodec(maxLen int) core.Codec[Record] {
	targetCodec := core.StringCodec(maxLen / 2)
	msgCodec := core.StringCodec(maxLen - maxLen/2)
	size := 8 + 1 + targetCodec.MaxSize + msgCodec.MaxSize
	return core.Codec[Record]{
		MaxSize: size,
		Encode: func(r Record) []byte {
			b := make([]byte, size)
			binary.BigEndian.PutUint64(b[0:8], r.TimestampNanos)
			b[8] = byte(r.Level)
			off := 9
			copy(b[off:off+targetCodec.MaxSize], targetCodec.Encode(r.Target))
			off += targetCodec.MaxSize
			copy(b[off:off+msgCodec.MaxSize], msgCodec.Encode(r.Message))
			return b
		},
		Decode: func(b []byte) Record {
			var r Record
			r.TimestampNanos = binary.BigEndian.Uint64(b[0:8])
			r.Level = Level(b[8])
			off := 9
			r.Target = targetCodec.Decode(b[off : off+targetCodec.MaxSize])
			off += targetCodec.MaxSize
			r.Message = msgCodec.Decode(b[off : off+msgCodec.MaxSize])
			return r
		},
	}
}

// RingSink is the fixed-capacity in-memory deque of Records, emitted
// independently of any console sink, per spec §4.7.
type RingSink struct {
	rb *core.RingBuffer[Record]
}

// NewRingSink initialises a brand-new RingSink of the given capacity.
func NewRingSink(slotsSM, stateSM *core.SubMemory, maxRecordLen int, capacity uint64) *RingSink {
	return &RingSink{rb: core.NewRingBuffer[Record](slotsSM, stateSM, RecordCodec(maxRecordLen), capacity)}
}

// OpenRingSink reattaches to a RingSink previously created by NewRingSink.
func OpenRingSink(slotsSM, stateSM *core.SubMemory, maxRecordLen int, capacity uint64) *RingSink {
	return &RingSink{rb: core.OpenRingBuffer[Record](slotsSM, stateSM, RecordCodec(maxRecordLen), capacity)}
}

// Push appends r, overwriting the oldest record if the sink is full.
func (s *RingSink) Push(r Record) { s.rb.Push(r) }

// Page returns up to count records starting at offset, oldest-first, for
// get_logs.
func (s *RingSink) Page(offset, count uint64) []Record {
	all := s.rb.ToSlice()
	if offset >= uint64(len(all)) {
		return nil
	}
	end := offset + count
	if end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return all[offset:end]
}

// Len returns the number of records currently retained.
func (s *RingSink) Len() uint64 { return s.rb.Len() }
