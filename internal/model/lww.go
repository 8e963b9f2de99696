package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// LWWElement carries the (value, time) pair that makes an event
// participate in last-writer-wins resolution over some subject.
type LWWElement struct {
	Value            []byte
	UnixMilliseconds uint64
}

func (e LWWElement) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, e.Value)
	b = wire.AppendUint64Field(b, 2, e.UnixMilliseconds)
	return b
}

func DecodeLWWElement(raw []byte) (LWWElement, error) {
	var e LWWElement
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.Value = append([]byte(nil), f.Bytes...)
		case 2:
			e.UnixMilliseconds = f.Varint
		}
		return nil
	})
	if err != nil {
		return LWWElement{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed lww element", err)
	}
	return e, nil
}

// LWWWins reports whether candidate strictly beats incumbent per
// invariant 6: greatest unix_milliseconds, ties broken by the greater
// process-identifier byte string.
func LWWWins(candidateMillis uint64, candidateProcess Process, incumbentMillis uint64, incumbentProcess Process) bool {
	if candidateMillis != incumbentMillis {
		return candidateMillis > incumbentMillis
	}
	return candidateProcess.Compare(incumbentProcess) > 0
}

// LWWElementSet is an ordered collection of LWW elements an event may
// carry for set-valued fields (e.g. multi-value follow lists).
type LWWElementSet struct {
	Elements []LWWElement
}

func (s LWWElementSet) Encode() []byte {
	var b []byte
	for _, e := range s.Elements {
		b = wire.AppendMessageField(b, 1, e.Encode())
	}
	return b
}

func DecodeLWWElementSet(raw []byte) (LWWElementSet, error) {
	var s LWWElementSet
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		e, derr := DecodeLWWElement(f.Bytes)
		if derr != nil {
			return derr
		}
		s.Elements = append(s.Elements, e)
		return nil
	})
	if err != nil {
		return LWWElementSet{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed lww element set", err)
	}
	return s, nil
}
