package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// Pointer names a specific event by its (system, process, logical clock)
// coordinate plus a digest of its exact bytes.
type Pointer struct {
	System      PublicKey
	Process     Process
	LogicalClock uint64
	EventDigest Digest
}

// InsecurePointer is a Pointer minus its digest, usable as a trusted-path
// map key once an event has already been verified once.
type InsecurePointer struct {
	System      PublicKey
	Process     Process
	LogicalClock uint64
}

func (p Pointer) Insecure() InsecurePointer {
	return InsecurePointer{System: p.System, Process: p.Process, LogicalClock: p.LogicalClock}
}

func (p Pointer) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, p.System.Encode())
	b = wire.AppendMessageField(b, 2, p.Process.Encode())
	b = wire.AppendUint64Field(b, 3, p.LogicalClock)
	b = wire.AppendMessageField(b, 4, p.EventDigest.Encode())
	return b
}

func DecodePointer(raw []byte) (Pointer, error) {
	var (
		p        Pointer
		haveSys  bool
		haveProc bool
		haveDig  bool
		err      error
	)
	perr := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			p.System, err = DecodePublicKey(f.Bytes)
			haveSys = err == nil
		case 2:
			p.Process, err = DecodeProcess(f.Bytes)
			haveProc = err == nil
		case 3:
			p.LogicalClock = f.Varint
		case 4:
			p.EventDigest, err = DecodeDigest(f.Bytes)
			haveDig = err == nil
		}
		return err
	})
	if perr != nil {
		return Pointer{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed pointer", perr)
	}
	if !haveSys || !haveProc || !haveDig {
		return Pointer{}, svcerr.New(svcerr.CodeMalformed, "pointer missing required field")
	}
	return p, nil
}
