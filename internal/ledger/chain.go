package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
	"time"

	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

const genesisDomain = "pactline:genesis:v1"

// Genesis is the hash an agreement's first event links to.
func Genesis(agreementID id.AgreementID, contentHash string) string {
	h := sha256.New()
	writeField(h, genesisDomain)
	writeField(h, agreementID.String())
	writeField(h, contentHash)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeHash hashes every stored field of e except Hash itself. Each field is
// length-prefixed so adjacent fields cannot be shifted into one another.
func ComputeHash(e Event) string {
	h := sha256.New()
	writeField(h, e.PreviousHash)
	writeField(h, e.ContentHash)
	writeField(h, e.SignerIdentity.String())
	writeField(h, formatTimestamp(e.Timestamp))
	writeField(h, e.AssertionRef)

	writeField(h, e.AgreementID.String())
	writeField(h, strconv.FormatInt(e.Sequence, 10))
	writeField(h, string(e.Kind))
	signer := ""
	if e.SignerID != nil {
		signer = e.SignerID.String()
	}
	writeField(h, signer)
	writeField(h, string(e.Method))
	writeField(h, e.DeviceFingerprint)
	writeField(h, e.NetworkOrigin)
	writeField(h, e.Geolocation)
	writeField(h, e.Reason)
	return hex.EncodeToString(h.Sum(nil))
}

// Build places d on top of head and computes its hash.
func Build(head Head, d Draft) (Event, error) {
	if !d.Kind.IsValid() {
		return Event{}, dErrors.New(dErrors.CodeInvariantViolation, "unknown event kind: "+string(d.Kind))
	}
	if d.SignerIdentity.IsZero() {
		return Event{}, dErrors.New(dErrors.CodeInvariantViolation, "event requires a signer identity")
	}
	if head.Hash == "" || head.ContentHash == "" {
		return Event{}, dErrors.New(dErrors.CodeInvariantViolation, "chain head is not initialised")
	}
	e := Event{
		AgreementID:       head.AgreementID,
		Sequence:          head.Sequence + 1,
		Kind:              d.Kind,
		SignerID:          d.SignerID,
		SignerIdentity:    d.SignerIdentity,
		Timestamp:         normaliseTimestamp(d.Timestamp),
		Method:            d.Method,
		AssertionRef:      d.AssertionRef,
		DeviceFingerprint: d.DeviceFingerprint,
		NetworkOrigin:     d.NetworkOrigin,
		Geolocation:       d.Geolocation,
		Reason:            d.Reason,
		PreviousHash:      head.Hash,
		ContentHash:       head.ContentHash,
	}
	e.Hash = ComputeHash(e)
	return e, nil
}

// Verification is the result of walking a chain.
type Verification struct {
	Valid bool
	// Head is the hash of the last event, or the genesis hash for an empty chain.
	Head string
	// BrokenAt is the 1-based position of the first event that fails to
	// link, or 0.
	BrokenAt int64
}

// Verify recomputes every hash from genesis. events must be in sequence
// order.
func Verify(agreementID id.AgreementID, contentHash string, events []Event) Verification {
	prev := Genesis(agreementID, contentHash)
	for i, e := range events {
		switch {
		case e.AgreementID != agreementID,
			e.Sequence != int64(i+1),
			e.ContentHash != contentHash,
			e.PreviousHash != prev,
			ComputeHash(e) != e.Hash:
			return Verification{Valid: false, Head: prev, BrokenAt: int64(i + 1)}
		}
		prev = e.Hash
	}
	return Verification{Valid: true, Head: prev}
}

// Timestamps are truncated to microseconds so they survive a round trip
// through Postgres timestamptz unchanged.
func normaliseTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
