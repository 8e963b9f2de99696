// Package wire implements a minimal hand-written protobuf wire codec.
//
// The entities in internal/model need a stable, language-neutral binary
// encoding: the same bytes a Rust or TypeScript peer would produce from
// a .proto schema. Generating full reflection
// capable message types without a .proto file and protoc is impractical
// by hand, so each entity implements Encode/Decode directly against
// google.golang.org/protobuf/encoding/protowire, the low-level package the
// protobuf-go project ships specifically for callers who want the wire
// format without full code generation. This package adds the handful of
// helpers every entity's encode/decode needs on top of protowire.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// AppendUint64Field appends a varint field, skipping zero values per
// proto3 "do not encode the default" convention.
func AppendUint64Field(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendUint64FieldAlways appends a varint field even when v is zero,
// for repeated scalar fields where proto3 still needs one wire entry per
// element (packed encoding is not used here to keep decode simple).
func AppendUint64FieldAlways(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendBytesField appends a length-delimited field, skipping empty values.
func AppendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendStringField appends a length-delimited string field.
func AppendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(v))
}

// AppendMessageField appends a length-delimited embedded message whose
// bytes the caller has already encoded.
func AppendMessageField(b []byte, num protowire.Number, encoded []byte) []byte {
	if len(encoded) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, encoded)
}

// Field is one decoded (number, type, value) tuple; Varint holds the
// value for VarintType and Bytes the unwrapped bytes for BytesType.
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Varint uint64
	Bytes []byte
}

// Parse walks every top-level field in b, invoking fn for each. It
// returns an error for any malformed tag or truncated value — callers
// wrap that as a svcerr.CodeMalformed error.
func Parse(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("wire: bad varint: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(Field{Num: num, Type: typ, Varint: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("wire: bad bytes: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(Field{Num: num, Type: typ, Bytes: v}); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return fmt.Errorf("wire: bad fixed32: %w", protowire.ParseError(n))
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return fmt.Errorf("wire: bad fixed64: %w", protowire.ParseError(n))
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wire: unsupported wire type %d", typ)
			}
			b = b[n:]
		}
	}
	return nil
}
