package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// Event is one entry in a process's append-only log.
// UnixMilliseconds is a pointer because it is genuinely optional: events
// that never participate in time-indexed queries need not carry one.
type Event struct {
	System           PublicKey
	Process          Process
	LogicalClock     uint64
	ContentType      ContentType
	Content          []byte
	VectorClock      VectorClock
	Indices          Indices
	References       []Reference
	LWWElement       *LWWElement
	LWWElementSet    *LWWElementSet
	UnixMilliseconds *uint64
}

func (e Event) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, e.System.Encode())
	b = wire.AppendMessageField(b, 2, e.Process.Encode())
	b = wire.AppendUint64Field(b, 3, e.LogicalClock)
	b = wire.AppendUint64Field(b, 4, uint64(e.ContentType))
	b = wire.AppendBytesField(b, 5, e.Content)
	b = wire.AppendMessageField(b, 6, e.VectorClock.Encode())
	b = wire.AppendMessageField(b, 7, e.Indices.Encode())
	for _, r := range e.References {
		b = wire.AppendMessageField(b, 8, r.Encode())
	}
	if e.LWWElement != nil {
		b = wire.AppendMessageField(b, 9, e.LWWElement.Encode())
	}
	if e.LWWElementSet != nil {
		b = wire.AppendMessageField(b, 10, e.LWWElementSet.Encode())
	}
	if e.UnixMilliseconds != nil {
		b = wire.AppendUint64FieldAlways(b, 11, *e.UnixMilliseconds)
	}
	return b
}

func DecodeEvent(raw []byte) (Event, error) {
	var (
		e        Event
		haveSys  bool
		haveProc bool
		haveTime bool
		unixMs   uint64
		err      error
	)
	perr := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.System, err = DecodePublicKey(f.Bytes)
			haveSys = err == nil
		case 2:
			e.Process, err = DecodeProcess(f.Bytes)
			haveProc = err == nil
		case 3:
			e.LogicalClock = f.Varint
		case 4:
			e.ContentType = ContentType(f.Varint)
		case 5:
			e.Content = append([]byte(nil), f.Bytes...)
		case 6:
			e.VectorClock, err = DecodeVectorClock(f.Bytes)
		case 7:
			e.Indices, err = DecodeIndices(f.Bytes)
		case 8:
			var r Reference
			r, err = DecodeReference(f.Bytes)
			if err == nil {
				e.References = append(e.References, r)
			}
		case 9:
			var el LWWElement
			el, err = DecodeLWWElement(f.Bytes)
			if err == nil {
				e.LWWElement = &el
			}
		case 10:
			var set LWWElementSet
			set, err = DecodeLWWElementSet(f.Bytes)
			if err == nil {
				e.LWWElementSet = &set
			}
		case 11:
			unixMs = f.Varint
			haveTime = true
		}
		return err
	})
	if perr != nil {
		return Event{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed event", perr)
	}
	if !haveSys || !haveProc {
		return Event{}, svcerr.New(svcerr.CodeMalformed, "event missing system or process")
	}
	if haveTime {
		e.UnixMilliseconds = &unixMs
	}
	return e, nil
}

// DecodeContent returns event's typed content, falling back to Unknown
// for forward-compatible content types this build does not interpret.
func (e Event) DecodeContent() (Content, error) {
	return decodeContent(e.ContentType, e.Content)
}
