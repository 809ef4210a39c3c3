package corelog

import (
	"encoding/binary"

	"canisdk/core"
)

const maxFilterLen = 256

// Settings is the logger's persisted configuration, per spec §4.7 plus the
// console/in-memory sink toggles carried over from the original's
// LogSettings.
type Settings struct {
	Filter          string
	Console         bool
	InMemory        bool
	InMemoryRecords int
	MaxRecordLength int
}

// DefaultSettings matches what NewLogger installs before init() is called.
func DefaultSettings() Settings {
	return Settings{
		Filter: "info", Console: true, InMemory: true,
		InMemoryRecords: 1000, MaxRecordLength: 4096,
	}
}

func settingsCodec() core.Codec[Settings] {
	filterCodec := core.StringCodec(maxFilterLen)
	size := filterCodec.MaxSize + 1 + 1 + 4 + 4
	return core.Codec[Settings]{
		MaxSize: size,
		Encode: func(s Settings) []byte {
			b := make([]byte, size)
			off := 0
			copy(b[off:off+filterCodec.MaxSize], filterCodec.Encode(s.Filter))
			off += filterCodec.MaxSize
			if s.Console {
				b[off] = 1
			}
			off++
			if s.InMemory {
				b[off] = 1
			}
			off++
			binary.BigEndian.PutUint32(b[off:], uint32(s.InMemoryRecords))
			off += 4
			binary.BigEndian.PutUint32(b[off:], uint32(s.MaxRecordLength))
			return b
		},
		Decode: func(b []byte) Settings {
			var s Settings
			off := 0
			s.Filter = filterCodec.Decode(b[off : off+filterCodec.MaxSize])
			off += filterCodec.MaxSize
			s.Console = b[off] != 0
			off++
			s.InMemory = b[off] != 0
			off++
			s.InMemoryRecords = int(binary.BigEndian.Uint32(b[off:]))
			off += 4
			s.MaxRecordLength = int(binary.BigEndian.Uint32(b[off:]))
			return s
		},
	}
}

// SettingsCell is the Cell a Logger persists its Settings in across
// upgrades.
type SettingsCell struct {
	cell *core.Cell[Settings]
}

// NewSettingsCell initialises a brand-new SettingsCell holding initial.
func NewSettingsCell(sm *core.SubMemory, initial Settings) *SettingsCell {
	return &SettingsCell{cell: core.NewCell[Settings](sm, settingsCodec(), initial)}
}

// OpenSettingsCell reattaches to a SettingsCell previously created by
// NewSettingsCell.
func OpenSettingsCell(sm *core.SubMemory) *SettingsCell {
	return &SettingsCell{cell: core.OpenCell[Settings](sm, settingsCodec())}
}

func (s *SettingsCell) Get() Settings { return s.cell.Get() }
func (s *SettingsCell) Set(v Settings) error { return s.cell.Set(v) }
