package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/agreement"
	"pactline/internal/identity"
	dErrors "pactline/pkg/domain-errors"
)

func TestCreateAgreementRequestValidate(t *testing.T) {
	t.Run("parses signers quorum and predecessor", func(t *testing.T) {
		req := &CreateAgreementRequest{
			TemplateRef:  "  nda-v1 ",
			Signers:      []SignerRequest{{IdentityRef: "user:a", Method: "biometric"}, {IdentityRef: "user:b", Method: "passcode"}},
			Quorum:       &QuorumRequest{Kind: " Threshold ", Threshold: 1},
			SupersedesID: "6f1c1e0e-8d7c-4c55-9d0c-2f4b4a1f3e11",
		}
		require.NoError(t, req.Validate())

		out := req.ToDomain()
		assert.Equal(t, "nda-v1", out.TemplateRef)
		assert.Equal(t, []agreement.SignerSpec{
			{IdentityRef: "user:a", Method: identity.MethodBiometric},
			{IdentityRef: "user:b", Method: identity.MethodPasscode},
		}, out.Signers)
		assert.Equal(t, agreement.QuorumPolicy{Kind: agreement.QuorumThreshold, Threshold: 1}, out.Quorum)
		require.NotNil(t, out.SupersedesID)
		assert.Equal(t, "6f1c1e0e-8d7c-4c55-9d0c-2f4b4a1f3e11", out.SupersedesID.String())
	})

	t.Run("omitted quorum is left to the service default", func(t *testing.T) {
		req := &CreateAgreementRequest{Signers: []SignerRequest{{IdentityRef: "user:a", Method: "password"}}}
		require.NoError(t, req.Validate())
		assert.Equal(t, agreement.QuorumKind(""), req.ToDomain().Quorum.Kind)
	})

	cases := []struct {
		name string
		req  CreateAgreementRequest
		code dErrors.Code
	}{
		{"empty identity", CreateAgreementRequest{Signers: []SignerRequest{{Method: "password"}}}, dErrors.CodeInvalidInput},
		{"unknown method", CreateAgreementRequest{Signers: []SignerRequest{{IdentityRef: "user:a", Method: "sms"}}}, dErrors.CodeInvalidInput},
		{"bad predecessor", CreateAgreementRequest{SupersedesID: "nope"}, dErrors.CodeInvalidInput},
		{"template ref too long", CreateAgreementRequest{TemplateRef: strings.Repeat("x", maxTemplateRefLen+1)}, dErrors.CodeValidation},
		{"too many signers", CreateAgreementRequest{Signers: make([]SignerRequest, maxSigners+1)}, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestAttachSignersRequestValidate(t *testing.T) {
	assert.True(t, dErrors.HasCode((&AttachSignersRequest{}).Validate(), dErrors.CodeNoSigners))

	req := &AttachSignersRequest{Signers: []SignerRequest{{IdentityRef: "user:a", Method: "password"}}}
	require.NoError(t, req.Validate())
	assert.Len(t, req.Specs(), 1)
}

func TestSignRequestValidate(t *testing.T) {
	req := &SignRequest{DeviceID: " phone-1 ", AssertionRef: " a-1 ", Signature: []byte{1, 2}}
	require.NoError(t, req.Validate())
	proof := req.Proof()
	assert.Equal(t, "phone-1", proof.DeviceID)
	assert.Equal(t, "a-1", proof.AssertionRef)

	long := &SignRequest{Password: strings.Repeat("p", maxPasswordLen+1)}
	assert.True(t, dErrors.HasCode(long.Validate(), dErrors.CodeValidation))
}
