package payments

import (
	"encoding/binary"

	"canisdk/core"
)

func encodePrincipal(p core.Principal, buf []byte) {
	buf[0] = byte(len(p))
	copy(buf[1:], p)
}

func decodePrincipal(buf []byte) core.Principal {
	n := int(buf[0])
	return append(core.Principal{}, buf[1:1+n]...)
}

func encodeAccount(a Account, buf []byte) {
	encodePrincipal(a.Owner, buf[:30])
	copy(buf[30:62], a.Subaccount[:])
}

func decodeAccount(buf []byte) Account {
	return Account{Owner: decodePrincipal(buf[:30]), Subaccount: [32]byte(buf[30:62])}
}

const transferEncodedSize = 30 + 30 + 62 + 62 + 8 + 8 + 1 + 1 + 1 + 62 + 8

// TransferCodec is the fixed-size encoding used to persist a Transfer
// inside the recovery list's OrderedMap.
func TransferCodec() core.Codec[Transfer] {
	return core.Codec[Transfer]{
		MaxSize: transferEncodedSize,
		Encode: func(t Transfer) []byte {
			b := make([]byte, transferEncodedSize)
			off := 0
			encodePrincipal(t.Token, b[off:off+30])
			off += 30
			encodePrincipal(t.Caller, b[off:off+30])
			off += 30
			encodeAccount(t.From, b[off:off+62])
			off += 62
			encodeAccount(t.To, b[off:off+62])
			off += 62
			binary.BigEndian.PutUint64(b[off:off+8], t.Amount)
			off += 8
			binary.BigEndian.PutUint64(b[off:off+8], t.Fee)
			off += 8
			b[off] = byte(t.Operation)
			off++
			b[off] = byte(t.Kind)
			off++
			b[off] = byte(t.Stage)
			off++
			encodeAccount(t.InterimAcc, b[off:off+62])
			off += 62
			binary.BigEndian.PutUint64(b[off:off+8], t.CreatedAt)
			return b
		},
		Decode: func(b []byte) Transfer {
			var t Transfer
			off := 0
			t.Token = decodePrincipal(b[off : off+30])
			off += 30
			t.Caller = decodePrincipal(b[off : off+30])
			off += 30
			t.From = decodeAccount(b[off : off+62])
			off += 62
			t.To = decodeAccount(b[off : off+62])
			off += 62
			t.Amount = binary.BigEndian.Uint64(b[off : off+8])
			off += 8
			t.Fee = binary.BigEndian.Uint64(b[off : off+8])
			off += 8
			t.Operation = Operation(b[off])
			off++
			t.Kind = TransferKind(b[off])
			off++
			t.Stage = Stage(b[off])
			off++
			t.InterimAcc = decodeAccount(b[off : off+62])
			off += 62
			t.CreatedAt = binary.BigEndian.Uint64(b[off : off+8])
			return t
		},
	}
}

func identityKeyCodec() core.Codec[[32]byte] {
	return core.Codec[[32]byte]{
		MaxSize: 32,
		Encode:  func(v [32]byte) []byte { return v[:] },
		Decode:  func(b []byte) [32]byte { var v [32]byte; copy(v[:], b); return v },
	}
}

// RecoveryList is the ordered, persistent collection of transfers left
// indeterminate by a maybe-failed host reply, keyed by transfer identity so
// a transfer never appears twice, per spec §3 "RecoveryList".
type RecoveryList struct {
	m *core.OrderedMap[[32]byte, Transfer]
}

// NewRecoveryList initialises a brand-new, empty RecoveryList.
func NewRecoveryList(sm *core.SubMemory) *RecoveryList {
	return &RecoveryList{m: core.NewOrderedMap[[32]byte, Transfer](sm, identityKeyCodec(), TransferCodec())}
}

// OpenRecoveryList reattaches to a RecoveryList previously created by
// NewRecoveryList.
func OpenRecoveryList(sm *core.SubMemory) *RecoveryList {
	return &RecoveryList{m: core.OpenOrderedMap[[32]byte, Transfer](sm, identityKeyCodec(), TransferCodec())}
}

// Add inserts t into the list, keyed by its identity. Re-adding a transfer
// with the same identity overwrites the stored attempt; a transfer whose
// created_at was renewed has a new identity and is stored under a new key.
func (r *RecoveryList) Add(t Transfer) {
	if err := r.m.Insert(t.Identity(), t); err != nil {
		core.Trap("recovery_list: insert: %v", err)
	}
}

// Remove deletes the transfer with the given identity, if present.
func (r *RecoveryList) Remove(identity [32]byte) {
	r.m.Remove(identity)
}

// Len returns the number of transfers currently awaiting recovery.
func (r *RecoveryList) Len() uint64 { return r.m.Len() }

// All returns every transfer currently on the list, in identity order. This
// snapshots the list so recover_all can mutate it (add/remove) safely while
// iterating the snapshot.
func (r *RecoveryList) All() []Transfer {
	out := make([]Transfer, 0, r.m.Len())
	it := r.m.Iter()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, e.Value)
	}
	return out
}
