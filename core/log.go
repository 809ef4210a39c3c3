package core

import "encoding/binary"

const (
	logMagic         = 0x4c4f4721 // "LOG!"
	logIdxHeaderSize = 20         // magic(4) + len(8) + dataLen(8)
)

// Log is an append-only sequence of variable-length records, backed by two
// SubMemories: an index (array of record end-offsets) and a data blob
// (concatenated record bytes), per spec.md §3/§4.2.
type Log struct {
	idx  *SubMemory
	data *SubMemory

	len     uint64
	dataLen uint64
}

// NewLog initialises a brand-new, empty Log over the given index and data
// sub-memories.
func NewLog(idx, data *SubMemory) *Log {
	if idx.LogicalPages() != 0 || data.LogicalPages() != 0 {
		Trap("log: sub-memories already initialised")
	}
	l := &Log{idx: idx, data: data}
	if err := idx.EnsureBytes(logIdxHeaderSize); err != nil {
		Trap("log: cannot allocate index header: %v", err)
	}
	l.writeHeader()
	return l
}

// OpenLog reattaches to a Log previously created by NewLog.
func OpenLog(idx, data *SubMemory) *Log {
	hdr := make([]byte, logIdxHeaderSize)
	idx.Read(0, hdr)
	if binary.BigEndian.Uint32(hdr[0:4]) != logMagic {
		Trap("log: bad magic, index sub-memory does not hold a Log")
	}
	return &Log{
		idx: idx, data: data,
		len:     binary.BigEndian.Uint64(hdr[4:12]),
		dataLen: binary.BigEndian.Uint64(hdr[12:20]),
	}
}

func (l *Log) writeHeader() {
	hdr := make([]byte, logIdxHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], logMagic)
	binary.BigEndian.PutUint64(hdr[4:12], l.len)
	binary.BigEndian.PutUint64(hdr[12:20], l.dataLen)
	l.idx.Write(0, hdr)
}

func (l *Log) entryOffset(i uint64) uint64 {
	return logIdxHeaderSize + i*8
}

// Len returns the number of records appended so far.
func (l *Log) Len() uint64 { return l.len }

// Append writes record bytes r, returning its index.
func (l *Log) Append(r []byte) uint64 {
	newDataLen := l.dataLen + uint64(len(r))
	if err := l.data.EnsureBytes(newDataLen); err != nil {
		Trap("log: cannot grow data sub-memory: %v", err)
	}
	if len(r) > 0 {
		l.data.Write(l.dataLen, r)
	}
	if err := l.idx.EnsureBytes(l.entryOffset(l.len) + 8); err != nil {
		Trap("log: cannot grow index sub-memory: %v", err)
	}
	endOff := make([]byte, 8)
	binary.BigEndian.PutUint64(endOff, newDataLen)
	l.idx.Write(l.entryOffset(l.len), endOff)

	idx := l.len
	l.len++
	l.dataLen = newDataLen
	l.writeHeader()
	return idx
}

// Get returns record i's bytes. i must be < Len().
func (l *Log) Get(i uint64) []byte {
	if i >= l.len {
		Trap("log: index %d out of range (len %d)", i, l.len)
	}
	var start uint64
	if i > 0 {
		buf := make([]byte, 8)
		l.idx.Read(l.entryOffset(i-1), buf)
		start = binary.BigEndian.Uint64(buf)
	}
	buf := make([]byte, 8)
	l.idx.Read(l.entryOffset(i), buf)
	end := binary.BigEndian.Uint64(buf)

	rec := make([]byte, end-start)
	if len(rec) > 0 {
		l.data.Read(start, rec)
	}
	return rec
}

// Clear resets the log to empty without releasing physical pages — the
// host cannot reclaim stable memory, per spec.md §4.2.
func (l *Log) Clear() {
	l.len = 0
	l.dataLen = 0
	l.writeHeader()
}
