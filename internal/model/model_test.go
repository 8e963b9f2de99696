package model

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) (PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return PublicKey{Type: KeyTypeEd25519, Bytes: pub}, priv
}

func TestDigestRoundTrip(t *testing.T) {
	d := DigestEvent([]byte("hello world"))
	decoded, err := DecodeDigest(d.Encode())
	require.NoError(t, err)
	require.True(t, d.Equal(decoded))
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub, _ := testKeypair(t)
	decoded, err := DecodePublicKey(pub.Encode())
	require.NoError(t, err)
	require.True(t, pub.Equal(decoded))
}

func TestProcessRoundTripAndZeroProcessAccepted(t *testing.T) {
	var zero Process
	decoded, err := DecodeProcess(zero.Encode())
	require.NoError(t, err)
	require.Equal(t, zero, decoded)
}

func TestProcessWrongLength(t *testing.T) {
	_, err := ProcessFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPointerRoundTrip(t *testing.T) {
	pub, _ := testKeypair(t)
	proc, err := ProcessFromBytes(make([]byte, ProcessLen))
	require.NoError(t, err)
	ptr := Pointer{
		System:       pub,
		Process:      proc,
		LogicalClock: 0,
		EventDigest:  DigestEvent([]byte("x")),
	}
	decoded, err := DecodePointer(ptr.Encode())
	require.NoError(t, err)
	require.Equal(t, ptr.LogicalClock, decoded.LogicalClock)
	require.True(t, ptr.EventDigest.Equal(decoded.EventDigest))
}

func TestReferenceRoundTripAllVariants(t *testing.T) {
	pub, _ := testKeypair(t)
	proc, _ := ProcessFromBytes(make([]byte, ProcessLen))
	ptr := Pointer{System: pub, Process: proc, LogicalClock: 5, EventDigest: DigestEvent([]byte("y"))}

	cases := []Reference{
		ReferenceToSystem(pub),
		ReferenceToPointer(ptr),
		ReferenceToBytes([]byte("https://example.com")),
	}
	for _, ref := range cases {
		decoded, err := DecodeReference(ref.Encode())
		require.NoError(t, err)
		require.Equal(t, ref.Type, decoded.Type)
	}
}

func TestClaimFieldsJSON(t *testing.T) {
	c := Claim{ClaimType: 1, Fields: []ClaimField{{Key: 1, Value: "alice"}}}
	decoded, err := DecodeClaim(c.Encode())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "alice"}, decoded.FieldsJSON())
}

func TestEventRoundTripWithLogicalClockZero(t *testing.T) {
	pub, _ := testKeypair(t)
	proc, _ := ProcessFromBytes(make([]byte, ProcessLen))
	ts := uint64(1000)
	ev := Event{
		System:           pub,
		Process:          proc,
		LogicalClock:     0,
		ContentType:      ContentTypePost,
		Content:          []byte("hi"),
		VectorClock:      VectorClock{Clocks: []uint64{0}},
		Indices:          Indices{Entries: []IndexEntry{{IndexType: 1, LogicalClock: 0}}},
		References:       []Reference{ReferenceToBytes([]byte("ref"))},
		UnixMilliseconds: &ts,
	}
	decoded, err := DecodeEvent(ev.Encode())
	require.NoError(t, err)
	require.Equal(t, ev.LogicalClock, decoded.LogicalClock)
	require.Equal(t, ev.ContentType, decoded.ContentType)
	require.Equal(t, ev.Content, decoded.Content)
	require.NotNil(t, decoded.UnixMilliseconds)
	require.Equal(t, ts, *decoded.UnixMilliseconds)
	require.Len(t, decoded.References, 1)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := testKeypair(t)
	proc, _ := ProcessFromBytes(make([]byte, ProcessLen))
	ev := Event{System: pub, Process: proc, LogicalClock: 52, ContentType: ContentTypePost, Content: []byte{0, 1, 2, 3}}
	signed := SignEvent(ev.Encode(), priv)

	decodedEvent, err := signed.Verify()
	require.NoError(t, err)
	require.Equal(t, ev.LogicalClock, decodedEvent.LogicalClock)

	roundTripped, err := DecodeSignedEvent(signed.Encode())
	require.NoError(t, err)
	_, err = roundTripped.Verify()
	require.NoError(t, err)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	pub, priv := testKeypair(t)
	proc, _ := ProcessFromBytes(make([]byte, ProcessLen))
	ev := Event{System: pub, Process: proc, LogicalClock: 1, ContentType: ContentTypePost, Content: []byte("x")}
	signed := SignEvent(ev.Encode(), priv)
	signed.Signature[0] ^= 0xFF

	_, err := signed.Verify()
	require.Error(t, err)
}

func TestLWWWinsTieBreaksOnProcess(t *testing.T) {
	var pa, pb Process
	pa[0] = 1
	pb[0] = 2
	require.True(t, LWWWins(1000, pb, 1000, pa))
	require.False(t, LWWWins(1000, pa, 1000, pb))
	require.True(t, LWWWins(2000, pa, 1000, pb))
}
