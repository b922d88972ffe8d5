//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAgreementID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseAgreementID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE agreements;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAgreementID(input)

		if err == nil {
			roundTrip, err2 := ParseAgreementID(id.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("Round-trip changed ID value")
			}
		}

		if !utf8.ValidString(input) && err == nil {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}

// FuzzParseIdentityRef checks the identity reference boundary never panics and
// never accepts control characters.
func FuzzParseIdentityRef(f *testing.F) {
	f.Add("idp|user:1")
	f.Add("")
	f.Add("a\x00b")

	f.Fuzz(func(t *testing.T, input string) {
		ref, err := ParseIdentityRef(input)
		if err != nil {
			return
		}
		for _, r := range ref.String() {
			if r < 0x20 || r == 0x7f {
				t.Errorf("accepted control character %q", r)
			}
		}
	})
}
