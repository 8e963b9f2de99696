package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// VectorClock is an opaque per-process causal-history vector an event may
// carry; the server persists it but does not interpret it (no global
// ordering is computed from it).
type VectorClock struct {
	Clocks []uint64
}

func (v VectorClock) Encode() []byte {
	var b []byte
	for _, c := range v.Clocks {
		b = wire.AppendUint64FieldAlways(b, 1, c)
	}
	return b
}

func DecodeVectorClock(raw []byte) (VectorClock, error) {
	var v VectorClock
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num == 1 {
			v.Clocks = append(v.Clocks, f.Varint)
		}
		return nil
	})
	if err != nil {
		return VectorClock{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed vector clock", err)
	}
	return v, nil
}

// IndexEntry names one (index_type, logical_clock) pair recorded by an
// event's producer, letting a query skip within a process by semantic
// index.
type IndexEntry struct {
	IndexType    uint64
	LogicalClock uint64
}

// Indices is the set of index entries an event declares.
type Indices struct {
	Entries []IndexEntry
}

func (idx Indices) Encode() []byte {
	var b []byte
	for _, e := range idx.Entries {
		var inner []byte
		inner = wire.AppendUint64Field(inner, 1, e.IndexType)
		inner = wire.AppendUint64Field(inner, 2, e.LogicalClock)
		b = wire.AppendMessageField(b, 1, inner)
	}
	return b
}

func DecodeIndices(raw []byte) (Indices, error) {
	var idx Indices
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		var e IndexEntry
		ierr := wire.Parse(f.Bytes, func(inner wire.Field) error {
			switch inner.Num {
			case 1:
				e.IndexType = inner.Varint
			case 2:
				e.LogicalClock = inner.Varint
			}
			return nil
		})
		if ierr != nil {
			return ierr
		}
		idx.Entries = append(idx.Entries, e)
		return nil
	})
	if err != nil {
		return Indices{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed indices", err)
	}
	return idx, nil
}
