package snapshot

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "pactline/pkg/domain-errors"
)

// SnapshotSuite covers canonicalisation and validation. Snapshot bytes feed
// the genesis hash of every ledger chain, so determinism is a hard contract.
type SnapshotSuite struct {
	suite.Suite
}

func TestSnapshotSuite(t *testing.T) {
	suite.Run(t, new(SnapshotSuite))
}

func validContent() Content {
	return Content{
		Title: "Equipment rental",
		Parties: []Party{
			{Role: "lessor", Name: "Ana Ruiz", IdentityRef: "idp|ana"},
			{Role: "lessee", Name: "Kofi Mensah", IdentityRef: "idp|kofi"},
		},
		Terms: []Term{
			{Key: "duration", Text: "Thirty days from signature."},
			{Key: "return", Text: "Returned in working order."},
		},
		Amount: &Money{Currency: "eur", Amount: "0150.50"},
	}
}

func (s *SnapshotSuite) TestTakeIsDeterministic() {
	s.Run("identical content yields identical bytes", func() {
		a, err := Take(validContent(), map[string]string{"channel": "chat", "locale": "es"})
		s.Require().NoError(err)
		b, err := Take(validContent(), map[string]string{"locale": "es", "channel": "chat"})
		s.Require().NoError(err)

		s.Equal(a.Bytes, b.Bytes)
		s.Equal(a.Hash, b.Hash)
		s.Equal(FormatVersion, a.Version)
	})

	s.Run("whitespace and amount notation are normalised", func() {
		messy := validContent()
		messy.Title = "  Equipment   rental "
		messy.Amount = &Money{Currency: " EUR", Amount: "150.500"}

		a, err := Take(validContent(), nil)
		s.Require().NoError(err)
		b, err := Take(messy, nil)
		s.Require().NoError(err)
		s.Equal(a.Hash, b.Hash)
	})

	s.Run("different terms yield different hashes", func() {
		changed := validContent()
		changed.Terms[0].Text = "Sixty days from signature."

		a, err := Take(validContent(), nil)
		s.Require().NoError(err)
		b, err := Take(changed, nil)
		s.Require().NoError(err)
		s.NotEqual(a.Hash, b.Hash)
	})
}

func (s *SnapshotSuite) TestTakeRejectsIncompleteContent() {
	cases := []struct {
		name   string
		mutate func(c *Content)
	}{
		{"no parties", func(c *Content) { c.Parties = nil }},
		{"party without name", func(c *Content) { c.Parties[0].Name = "  " }},
		{"no terms", func(c *Content) { c.Terms = nil }},
		{"empty term text", func(c *Content) { c.Terms[1].Text = "" }},
		{"amount without currency", func(c *Content) { c.Amount.Currency = "" }},
		{"amount without value", func(c *Content) { c.Amount.Amount = "" }},
		{"non numeric amount", func(c *Content) { c.Amount.Amount = "12,50" }},
		{"float exponent", func(c *Content) { c.Amount.Amount = "1e3" }},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			c := validContent()
			tc.mutate(&c)
			_, err := Take(c, nil)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeContentInvalid))
		})
	}
}

func (s *SnapshotSuite) TestMetadataKeysCollidingAfterCleanup() {
	cases := []struct {
		name     string
		metadata map[string]string
	}{
		{"leading space", map[string]string{"ref": "one", " ref": "two"}},
		{"inner whitespace", map[string]string{"order ref": "one", "order\t ref": "two"}},
		{"unicode composition", map[string]string{"caf\u00e9": "one", "cafe\u0301": "two"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			// Map order varies between runs; every run must reject.
			for range 50 {
				_, err := Take(validContent(), tc.metadata)
				s.Require().Error(err)
				s.True(dErrors.HasCode(err, dErrors.CodeContentInvalid))
			}
		})
	}

	s.Run("distinct keys after cleanup are kept", func() {
		snap, err := Take(validContent(), map[string]string{" ref ": "one", "other": "two"})
		s.Require().NoError(err)
		_, meta, err := Decode(snap)
		s.Require().NoError(err)
		s.Equal(map[string]string{"ref": "one", "other": "two"}, meta)
	})
}

func (s *SnapshotSuite) TestVerifyAndDecode() {
	snap, err := Take(validContent(), map[string]string{"template": "rental-v3"})
	s.Require().NoError(err)

	s.True(Verify(snap))

	content, meta, err := Decode(snap)
	s.Require().NoError(err)
	s.Equal("EUR", content.Amount.Currency)
	s.Equal("150.5", content.Amount.Amount)
	s.Equal("rental-v3", meta["template"])

	tampered := snap
	tampered.Bytes = append([]byte{}, snap.Bytes...)
	tampered.Bytes[len(tampered.Bytes)-2] ^= 0x01
	s.False(Verify(tampered))
}
