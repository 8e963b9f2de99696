package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// ReferenceType tags which variant a Reference carries.
type ReferenceType uint64

const (
	ReferenceTypeSystem  ReferenceType = 1
	ReferenceTypePointer ReferenceType = 2
	ReferenceTypeBytes   ReferenceType = 3
)

// Reference is a tagged item an event cites: another system, a specific
// event (by pointer), or an opaque byte string subject (e.g. a URL).
type Reference struct {
	Type    ReferenceType
	System  PublicKey
	Pointer Pointer
	Bytes   []byte
}

func ReferenceToSystem(k PublicKey) Reference {
	return Reference{Type: ReferenceTypeSystem, System: k}
}

func ReferenceToPointer(p Pointer) Reference {
	return Reference{Type: ReferenceTypePointer, Pointer: p}
}

func ReferenceToBytes(b []byte) Reference {
	return Reference{Type: ReferenceTypeBytes, Bytes: b}
}

func (r Reference) Encode() []byte {
	var inner []byte
	switch r.Type {
	case ReferenceTypeSystem:
		inner = r.System.Encode()
	case ReferenceTypePointer:
		inner = r.Pointer.Encode()
	case ReferenceTypeBytes:
		inner = r.Bytes
	}
	var b []byte
	b = wire.AppendUint64Field(b, 1, uint64(r.Type))
	b = wire.AppendBytesField(b, 2, inner)
	return b
}

func DecodeReference(raw []byte) (Reference, error) {
	var (
		r     Reference
		inner []byte
	)
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.Type = ReferenceType(f.Varint)
		case 2:
			inner = f.Bytes
		}
		return nil
	})
	if err != nil {
		return Reference{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed reference", err)
	}
	var derr error
	switch r.Type {
	case ReferenceTypeSystem:
		r.System, derr = DecodePublicKey(inner)
	case ReferenceTypePointer:
		r.Pointer, derr = DecodePointer(inner)
	case ReferenceTypeBytes:
		r.Bytes = append([]byte(nil), inner...)
	default:
		return Reference{}, svcerr.New(svcerr.CodeMalformed, "unknown reference type")
	}
	if derr != nil {
		return Reference{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed reference payload", derr)
	}
	return r, nil
}

// SubjectBytes returns the opaque byte-string key used for counts and
// latest-reference tables keyed on a non-pointer subject: the raw bytes
// for a Bytes reference, or the encoded public key for a System
// reference (so follows/vouches of a system can be tallied the same
// way as references to an arbitrary byte string).
func (r Reference) SubjectBytes() []byte {
	if r.Type == ReferenceTypeSystem {
		return r.System.Encode()
	}
	return r.Bytes
}
