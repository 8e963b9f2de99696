package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// Delete is the content of a DELETE event: it names the (process,
// logical_clock) of the event being tombstoned, the content_type it had,
// a snapshot of its indices (so range/index bookkeeping for the removed
// coordinate is preserved), and the wall-clock time of the deletion.
type Delete struct {
	Process          Process
	LogicalClock     uint64
	ContentType      ContentType
	Indices          Indices
	UnixMilliseconds uint64
}

func (d Delete) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, d.Process.Encode())
	b = wire.AppendUint64Field(b, 2, d.LogicalClock)
	b = wire.AppendUint64Field(b, 3, uint64(d.ContentType))
	b = wire.AppendMessageField(b, 4, d.Indices.Encode())
	b = wire.AppendUint64Field(b, 5, d.UnixMilliseconds)
	return b
}

func DecodeDelete(raw []byte) (Delete, error) {
	var (
		d       Delete
		haveProc bool
		err     error
	)
	perr := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			d.Process, err = DecodeProcess(f.Bytes)
			haveProc = err == nil
		case 2:
			d.LogicalClock = f.Varint
		case 3:
			d.ContentType = ContentType(f.Varint)
		case 4:
			var ierr error
			d.Indices, ierr = DecodeIndices(f.Bytes)
			if ierr != nil {
				err = ierr
			}
		case 5:
			d.UnixMilliseconds = f.Varint
		}
		return err
	})
	if perr != nil {
		return Delete{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed delete", perr)
	}
	if !haveProc {
		return Delete{}, svcerr.New(svcerr.CodeMalformed, "delete missing process")
	}
	return d, nil
}
