package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// ProcessLen is the fixed size of a process identifier.
const ProcessLen = 16

// Process is a 16-byte opaque identifier naming one append-only writer
// owned by exactly one System.
type Process [ProcessLen]byte

// ProcessFromBytes validates and wraps a process identifier.
func ProcessFromBytes(b []byte) (Process, error) {
	var p Process
	if len(b) != ProcessLen {
		return p, svcerr.New(svcerr.CodeMalformed, "process must be 16 bytes")
	}
	copy(p[:], b)
	return p, nil
}

func (p Process) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, p[:])
	return b
}

func DecodeProcess(raw []byte) (Process, error) {
	var inner []byte
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num == 1 {
			inner = f.Bytes
		}
		return nil
	})
	if err != nil {
		return Process{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed process", err)
	}
	return ProcessFromBytes(inner)
}

func (p Process) Bytes() []byte { return p[:] }

// Compare returns -1, 0, or 1 comparing the two processes as big-endian
// byte strings — used to break LWW ties per invariant 6.
func (p Process) Compare(o Process) int {
	for i := 0; i < ProcessLen; i++ {
		if p[i] != o[i] {
			if p[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
