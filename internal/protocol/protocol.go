// Package protocol defines the wire message envelopes carried over the
// HTTP surface: request/response wrappers that are themselves
// length-delimited protobuf-shaped messages, built on the same
// internal/wire codec as internal/model, rather than a separate JSON
// API, keeping the public wire schema in one encoding discipline end to
// end.
package protocol

import (
	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// Events wraps a batch of signed events, used as both the /events
// request body and the response body of every read endpoint that
// returns events.
type Events struct {
	Events []model.SignedEvent
}

func (e Events) Encode() []byte {
	var b []byte
	for _, se := range e.Events {
		b = wire.AppendMessageField(b, 1, se.Encode())
	}
	return b
}

func DecodeEvents(raw []byte) (Events, error) {
	var out Events
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		se, err := model.DecodeSignedEvent(f.Bytes)
		if err != nil {
			return err
		}
		out.Events = append(out.Events, se)
		return nil
	})
	if err != nil {
		return Events{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed events batch", err)
	}
	return out, nil
}

// Range is a run of known logical clocks, inclusive on both ends.
type Range struct {
	Low  uint64
	High uint64
}

func (r Range) Encode() []byte {
	var b []byte
	b = wire.AppendUint64Field(b, 1, r.Low)
	b = wire.AppendUint64Field(b, 2, r.High)
	return b
}

func DecodeRange(raw []byte) (Range, error) {
	var r Range
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.Low = f.Varint
		case 2:
			r.High = f.Varint
		}
		return nil
	})
	return r, err
}

// RangesForProcess is one process's known-range list within a
// RangesForSystem response.
type RangesForProcess struct {
	Process model.Process
	Ranges  []Range
}

func (p RangesForProcess) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, p.Process.Encode())
	for _, r := range p.Ranges {
		b = wire.AppendMessageField(b, 2, r.Encode())
	}
	return b
}

func DecodeRangesForProcess(raw []byte) (RangesForProcess, error) {
	var out RangesForProcess
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			proc, err := model.DecodeProcess(f.Bytes)
			if err != nil {
				return err
			}
			out.Process = proc
		case 2:
			r, err := DecodeRange(f.Bytes)
			if err != nil {
				return err
			}
			out.Ranges = append(out.Ranges, r)
		}
		return nil
	})
	if err != nil {
		return RangesForProcess{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed ranges for process", err)
	}
	return out, nil
}

// RangesForSystem is the response to GET /ranges.
type RangesForSystem struct {
	RangesForProcesses []RangesForProcess
}

func (r RangesForSystem) Encode() []byte {
	var b []byte
	for _, p := range r.RangesForProcesses {
		b = wire.AppendMessageField(b, 1, p.Encode())
	}
	return b
}

func DecodeRangesForSystem(raw []byte) (RangesForSystem, error) {
	var out RangesForSystem
	err := wire.Parse(raw, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		p, err := DecodeRangesForProcess(f.Bytes)
		if err != nil {
			return err
		}
		out.RangesForProcesses = append(out.RangesForProcesses, p)
		return nil
	})
	if err != nil {
		return RangesForSystem{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed ranges for system", err)
	}
	return out, nil
}

// QueryIndexResponse is the response to GET /query_index: the system's
// windowed events across all its processes, plus up to two bracketing
// proof events per process (query.IndexResult, wire-shaped for transport).
type QueryIndexResponse struct {
	Events []model.SignedEvent
	Proof  []model.SignedEvent
}

func (r QueryIndexResponse) Encode() []byte {
	var b []byte
	for _, se := range r.Events {
		b = wire.AppendMessageField(b, 1, se.Encode())
	}
	for _, se := range r.Proof {
		b = wire.AppendMessageField(b, 2, se.Encode())
	}
	return b
}

// QueryReferencesRequest is the decoded body of the `query` parameter on
// GET /query_references.
type QueryReferencesRequest struct {
	Subject        model.Reference
	FromType       model.ContentType
	Cursor         int64
	Limit          int64
	CountLWWMode   bool
}

func (q QueryReferencesRequest) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, q.Subject.Encode())
	b = wire.AppendUint64Field(b, 2, uint64(q.FromType))
	b = wire.AppendUint64Field(b, 3, uint64(q.Cursor))
	b = wire.AppendUint64Field(b, 4, uint64(q.Limit))
	return b
}

func DecodeQueryReferencesRequest(raw []byte) (QueryReferencesRequest, error) {
	var out QueryReferencesRequest
	var haveSubject bool
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			ref, err := model.DecodeReference(f.Bytes)
			if err != nil {
				return err
			}
			out.Subject = ref
			haveSubject = true
		case 2:
			out.FromType = model.ContentType(f.Varint)
		case 3:
			out.Cursor = int64(f.Varint)
		case 4:
			out.Limit = int64(f.Varint)
		}
		return nil
	})
	if err != nil {
		return QueryReferencesRequest{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed query references request", err)
	}
	if !haveSubject {
		return QueryReferencesRequest{}, svcerr.New(svcerr.CodeMalformed, "query references request missing subject")
	}
	return out, nil
}

// QueryReferencesResponse is the response to GET /query_references.
type QueryReferencesResponse struct {
	Events     []model.SignedEvent
	Cursor     int64
	Count      int64
}

func (r QueryReferencesResponse) Encode() []byte {
	var b []byte
	for _, se := range r.Events {
		b = wire.AppendMessageField(b, 1, se.Encode())
	}
	b = wire.AppendUint64Field(b, 2, uint64(r.Cursor))
	b = wire.AppendUint64Field(b, 3, uint64(r.Count))
	return b
}

// QueryClaimToSystemRequest describes a /resolve_claim lookup: claims
// of ClaimType corroborated by a VOUCH from TrustRoot, matched either
// by MatchAnyField or, when empty, by MatchAllFields containment;
// System optionally restricts matches to one claiming system.
type QueryClaimToSystemRequest struct {
	TrustRoot      model.PublicKey
	ClaimType      uint64
	System         *model.PublicKey
	MatchAnyField  string
	MatchAllFields map[string]string
	Limit          int64
}

// QueryClaimToSystemResponse is the response to GET /resolve_claim.
type QueryClaimToSystemResponse struct {
	Events []model.SignedEvent
	Cursor int64
}

func (r QueryClaimToSystemResponse) Encode() []byte {
	var b []byte
	for _, se := range r.Events {
		b = wire.AppendMessageField(b, 1, se.Encode())
	}
	b = wire.AppendUint64Field(b, 2, uint64(r.Cursor))
	return b
}

// FindClaimAndVouchRequest describes a /find_claim_and_vouch lookup:
// the (claim, vouch) pair where the claim is authored by
// ClaimingSystem and matches ClaimType/Fields exactly, corroborated by
// a vouch authored by VouchingSystem.
type FindClaimAndVouchRequest struct {
	VouchingSystem model.PublicKey
	ClaimingSystem model.PublicKey
	ClaimType      uint64
	Fields         map[string]string
}

// FindClaimAndVouchResponse pairs a claim event with the one vouch event
// that corroborates it; Vouches holds that single event.
type FindClaimAndVouchResponse struct {
	Claim   model.SignedEvent
	Vouches []model.SignedEvent
}

func (r FindClaimAndVouchResponse) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, r.Claim.Encode())
	for _, v := range r.Vouches {
		b = wire.AppendMessageField(b, 2, v.Encode())
	}
	return b
}

// ClaimHandleRequest is the decoded body of POST /claim_handle.
type ClaimHandleRequest struct {
	Handle string
	System model.PublicKey
}

func (c ClaimHandleRequest) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, []byte(c.Handle))
	b = wire.AppendMessageField(b, 2, c.System.Encode())
	return b
}

func DecodeClaimHandleRequest(raw []byte) (ClaimHandleRequest, error) {
	var out ClaimHandleRequest
	var haveSystem bool
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			out.Handle = string(f.Bytes)
		case 2:
			sys, err := model.DecodePublicKey(f.Bytes)
			if err != nil {
				return err
			}
			out.System = sys
			haveSystem = true
		}
		return nil
	})
	if err != nil {
		return ClaimHandleRequest{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed claim handle request", err)
	}
	if out.Handle == "" || !haveSystem {
		return ClaimHandleRequest{}, svcerr.New(svcerr.CodeMalformed, "claim handle request missing fields")
	}
	return out, nil
}

// HarborChallengeResponse is the response to GET /challenge.
type HarborChallengeResponse struct {
	ChallengeID string
	Nonce       []byte
}

func (h HarborChallengeResponse) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, []byte(h.ChallengeID))
	b = wire.AppendBytesField(b, 2, h.Nonce)
	return b
}

// HarborValidateRequest is the decoded body of administrative requests
// (POST /purge, and the Authorization-header bundle of POST /censor)
// redeeming a previously issued challenge.
type HarborValidateRequest struct {
	ChallengeID string
	System      model.PublicKey
	Signature   []byte
}

func (h HarborValidateRequest) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, 1, []byte(h.ChallengeID))
	b = wire.AppendMessageField(b, 2, h.System.Encode())
	b = wire.AppendBytesField(b, 3, h.Signature)
	return b
}

func DecodeHarborValidateRequest(raw []byte) (HarborValidateRequest, error) {
	var out HarborValidateRequest
	var haveSystem bool
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			out.ChallengeID = string(f.Bytes)
		case 2:
			sys, err := model.DecodePublicKey(f.Bytes)
			if err != nil {
				return err
			}
			out.System = sys
			haveSystem = true
		case 3:
			out.Signature = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return HarborValidateRequest{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed harbor validate request", err)
	}
	if out.ChallengeID == "" || !haveSystem || len(out.Signature) == 0 {
		return HarborValidateRequest{}, svcerr.New(svcerr.CodeMalformed, "harbor validate request missing fields")
	}
	return out, nil
}
