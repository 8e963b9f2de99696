package model

import (
	"crypto/ed25519"

	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// KeyType enumerates the public-key algorithms a System may carry.
type KeyType uint64

const (
	KeyTypeEd25519 KeyType = 1
)

// PublicKey is a System's immutable identity: a key-type tag plus the raw
// key bytes. Unknown key types round-trip their bytes so events signed
// under a newer scheme this server does not understand are not silently
// corrupted — they simply fail signature verification.
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

func (k PublicKey) Encode() []byte {
	var b []byte
	b = wire.AppendUint64Field(b, 1, uint64(k.Type))
	b = wire.AppendBytesField(b, 2, k.Bytes)
	return b
}

func DecodePublicKey(raw []byte) (PublicKey, error) {
	var k PublicKey
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			k.Type = KeyType(f.Varint)
		case 2:
			k.Bytes = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return PublicKey{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed public key", err)
	}
	if len(k.Bytes) == 0 {
		return PublicKey{}, svcerr.New(svcerr.CodeMalformed, "public key missing bytes")
	}
	return k, nil
}

// Equal compares two public keys by type and raw bytes.
func (k PublicKey) Equal(o PublicKey) bool {
	if k.Type != o.Type || len(k.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range k.Bytes {
		if k.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}

// VerifySignature validates signature over message under this key.
// BadSignature is returned for any deviation: unknown key type, bad key
// length, or a cryptographic verification failure.
func (k PublicKey) VerifySignature(message, signature []byte) error {
	switch k.Type {
	case KeyTypeEd25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return svcerr.New(svcerr.CodeBadSignature, "invalid ed25519 key length")
		}
		if ed25519.Verify(ed25519.PublicKey(k.Bytes), message, signature) {
			return nil
		}
		return svcerr.New(svcerr.CodeBadSignature, "signature verification failed")
	default:
		return svcerr.New(svcerr.CodeBadSignature, "unsupported key type")
	}
}

// URLSafeIdentifier encodes already proto-encoded bytes as URL-safe
// base64.
func URLSafeIdentifier(encoded []byte) string {
	return urlSafeBase64.EncodeToString(encoded)
}
