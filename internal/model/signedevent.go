package model

import (
	"crypto/ed25519"

	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// ModerationStatus tracks a POST event through the moderation coordinator.
type ModerationStatus string

const (
	ModerationStatusUnprocessed       ModerationStatus = "unprocessed"
	ModerationStatusProcessing        ModerationStatus = "processing"
	ModerationStatusApproved          ModerationStatus = "approved"
	ModerationStatusFlaggedAndRejected ModerationStatus = "flagged_and_rejected"
	ModerationStatusError             ModerationStatus = "error"
)

// ModerationTag is one (tag-name, level) classification attached to an
// event after moderation.
type ModerationTag struct {
	Name  string
	Level int16
}

// SignedEvent is an event's exact encoded bytes plus the signature over
// them, with moderation tags attached post-ingest.
type SignedEvent struct {
	Event          []byte
	Signature      []byte
	ModerationTags []ModerationTag
}

func (s SignedEvent) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, s.Event)
	b = wire.AppendBytesField(b, 2, s.Signature)
	return b
}

func DecodeSignedEvent(raw []byte) (SignedEvent, error) {
	var s SignedEvent
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			s.Event = append([]byte(nil), f.Bytes...)
		case 2:
			s.Signature = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return SignedEvent{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed signed event", err)
	}
	if len(s.Event) == 0 || len(s.Signature) == 0 {
		return SignedEvent{}, svcerr.New(svcerr.CodeMalformed, "signed event missing event or signature")
	}
	return s, nil
}

// SignEvent signs eventBytes (the result of Event.Encode) under key,
// returning the resulting SignedEvent. key must be an ed25519.PrivateKey.
func SignEvent(eventBytes []byte, key ed25519.PrivateKey) SignedEvent {
	sig := ed25519.Sign(key, eventBytes)
	return SignedEvent{Event: eventBytes, Signature: sig}
}

// Verify checks that the signed event's signature validates under the
// system key declared inside its encoded event.A.
// It returns the decoded Event on success so callers need not re-decode.
func (s SignedEvent) Verify() (Event, error) {
	event, err := DecodeEvent(s.Event)
	if err != nil {
		return Event{}, err
	}
	if err := event.System.VerifySignature(s.Event, s.Signature); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Digest computes the content digest of the signed event's raw event
// bytes, used to build Pointers to this event.
func (s SignedEvent) Digest() Digest {
	return DigestEvent(s.Event)
}
