package agreement

import (
	"slices"
	"time"

	"pactline/internal/ledger"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

// Tally counts signer outcomes.
type Tally struct {
	Total    int
	Signed   int
	Declined int
	Expired  int
}

// Open is the number of signers who may still sign.
func (t Tally) Open() int {
	return t.Total - t.Signed - t.Declined - t.Expired
}

func Count(signers []Signer) Tally {
	t := Tally{Total: len(signers)}
	for _, s := range signers {
		switch s.Status {
		case SignerSigned:
			t.Signed++
		case SignerDeclined:
			t.Declined++
		case SignerExpired:
			t.Expired++
		}
	}
	return t
}

// Evaluate derives the status of a dispatched agreement from its signers.
// Under QuorumAll any decline is terminal; under QuorumThreshold a decline is
// terminal only once the remaining signers can no longer reach the threshold.
func Evaluate(q QuorumPolicy, signers []Signer) Status {
	t := Count(signers)
	required := q.Required(t.Total)
	switch {
	case t.Signed >= required && required > 0:
		return StatusCompleted
	case q.Kind == QuorumAll && t.Declined > 0:
		return StatusDeclined
	case t.Signed+t.Open() < required:
		return StatusDeclined
	case t.Signed > 0:
		return StatusPartiallySigned
	}
	return StatusDispatched
}

// CheckSignable returns the signer if it may sign or decline now.
func CheckSignable(a *Agreement, signers []Signer, signerID id.SignerID, now time.Time) (*Signer, error) {
	switch {
	case a.Status.IsTerminal():
		return nil, dErrors.New(dErrors.CodeAgreementClosed, "agreement is "+a.Status.String())
	case a.Status == StatusDraft:
		return nil, dErrors.New(dErrors.CodeConflict, "agreement has not been dispatched")
	case a.ExpiredAt(now):
		return nil, dErrors.New(dErrors.CodeAgreementClosed, "agreement has expired")
	}

	i := slices.IndexFunc(signers, func(s Signer) bool { return s.ID == signerID })
	if i < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "signer not found")
	}
	signer := signers[i]
	if signer.Status.IsResolved() {
		return nil, dErrors.New(dErrors.CodeConflict, "signer has already "+string(signer.Status))
	}

	if a.Sequential {
		for _, s := range signers {
			if s.Order < signer.Order && !s.Status.IsResolved() {
				return nil, dErrors.New(dErrors.CodeOutOfOrder, "an earlier signer has not responded yet")
			}
		}
	}
	return &signer, nil
}

// Apply folds a committed event into copies of the agreement and its signers.
func Apply(a Agreement, signers []Signer, e ledger.Event) (Agreement, []Signer, error) {
	if e.Sequence != a.Version+1 || e.PreviousHash != a.HeadHash {
		return a, signers, dErrors.New(dErrors.CodeInvariantViolation, "event does not extend the agreement's chain")
	}
	if a.Status.IsTerminal() {
		return a, signers, dErrors.New(dErrors.CodeAgreementClosed, "agreement is "+a.Status.String())
	}

	out := slices.Clone(signers)
	ts := e.Timestamp

	switch e.Kind {
	case ledger.KindSigned, ledger.KindDeclined:
		if e.SignerID == nil {
			return a, signers, dErrors.New(dErrors.CodeInvariantViolation, "event has no signer")
		}
		i := slices.IndexFunc(out, func(s Signer) bool { return s.ID == *e.SignerID })
		if i < 0 {
			return a, signers, dErrors.New(dErrors.CodeNotFound, "signer not found")
		}
		if out[i].Status.IsResolved() {
			return a, signers, dErrors.New(dErrors.CodeConflict, "signer has already "+string(out[i].Status))
		}
		out[i].Status = SignerSigned
		if e.Kind == ledger.KindDeclined {
			out[i].Status = SignerDeclined
		}
		out[i].ResolvedAt = &ts
		out[i].VerifyingUntil = nil
		a.Status = Evaluate(a.Quorum, out)
	case ledger.KindExpired:
		for i := range out {
			if !out[i].Status.IsResolved() {
				out[i].Status = SignerExpired
				out[i].ResolvedAt = &ts
				out[i].VerifyingUntil = nil
			}
		}
		a.Status = StatusExpired
	default:
		return a, signers, dErrors.New(dErrors.CodeInvariantViolation, "unknown event kind")
	}

	a.Version = e.Sequence
	a.HeadHash = e.Hash
	if a.Status.IsTerminal() {
		a.ClosedAt = &ts
	}
	return a, out, nil
}

// NextInOrder returns the lowest-ordered unresolved signer of a sequential
// agreement.
func NextInOrder(signers []Signer) (Signer, bool) {
	var next *Signer
	for i := range signers {
		s := &signers[i]
		if s.Status.IsResolved() {
			continue
		}
		if next == nil || s.Order < next.Order {
			next = s
		}
	}
	if next == nil {
		return Signer{}, false
	}
	return *next, true
}
