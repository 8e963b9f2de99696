package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// ClaimField is one (field_key, field_value) pair inside a claim, e.g.
// {1: "alice"} for a Twitter-handle claim.
type ClaimField struct {
	Key   uint64
	Value string
}

// Claim is a structured attestation embedded as a CLAIM event's content:
// "I own handle X on service Y".
type Claim struct {
	ClaimType uint64
	Fields    []ClaimField
}

func (c Claim) Encode() []byte {
	var b []byte
	b = wire.AppendUint64Field(b, 1, c.ClaimType)
	for _, f := range c.Fields {
		var inner []byte
		inner = wire.AppendUint64Field(inner, 1, f.Key)
		inner = wire.AppendStringField(inner, 2, f.Value)
		b = wire.AppendMessageField(b, 2, inner)
	}
	return b
}

func DecodeClaim(raw []byte) (Claim, error) {
	var c Claim
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			c.ClaimType = f.Varint
		case 2:
			var cf ClaimField
			ierr := wire.Parse(f.Bytes, func(inner wire.Field) error {
				switch inner.Num {
				case 1:
					cf.Key = inner.Varint
				case 2:
					cf.Value = string(inner.Bytes)
				}
				return nil
			})
			if ierr != nil {
				return ierr
			}
			c.Fields = append(c.Fields, cf)
		}
		return nil
	})
	if err != nil {
		return Claim{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed claim", err)
	}
	return c, nil
}

// FieldsJSON renders the claim's fields as the JSON object the claims
// table stores: {"<key>": "<value>", ...}, keyed by the field key's
// decimal string representation (invariant 7).
func (c Claim) FieldsJSON() map[string]string {
	out := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		out[uitoa(f.Key)] = f.Value
	}
	return out
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
