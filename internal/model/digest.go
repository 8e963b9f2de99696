package model

import (
	"crypto/sha256"

	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// DigestType enumerates the supported content-digest algorithms.
type DigestType uint64

const (
	DigestTypeSHA256 DigestType = 1
)

// Digest is a content hash over an event's exact encoded bytes.
type Digest struct {
	Type  DigestType
	Bytes []byte
}

// DigestEvent computes the canonical digest for an event's raw bytes.
func DigestEvent(eventBytes []byte) Digest {
	sum := sha256.Sum256(eventBytes)
	return Digest{Type: DigestTypeSHA256, Bytes: sum[:]}
}

func (d Digest) Encode() []byte {
	var b []byte
	b = wire.AppendUint64Field(b, 1, uint64(d.Type))
	b = wire.AppendBytesField(b, 2, d.Bytes)
	return b
}

func DecodeDigest(raw []byte) (Digest, error) {
	var d Digest
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			d.Type = DigestType(f.Varint)
		case 2:
			d.Bytes = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return Digest{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed digest", err)
	}
	if d.Type != DigestTypeSHA256 {
		return Digest{}, svcerr.New(svcerr.CodeMalformed, "unknown digest type")
	}
	if len(d.Bytes) != sha256.Size {
		return Digest{}, svcerr.New(svcerr.CodeMalformed, "digest length mismatch")
	}
	return d, nil
}

func (d Digest) Equal(o Digest) bool {
	if d.Type != o.Type || len(d.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range d.Bytes {
		if d.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}
