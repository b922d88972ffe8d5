package identity

import (
	"crypto/ed25519"
	"time"

	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

// Method is the verification method assigned to a signer.
type Method string

const (
	MethodBiometric Method = "biometric"
	MethodPasscode  Method = "passcode"
	MethodPassword  Method = "password"
)

// ParseMethod validates a method name at a trust boundary.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported verification method: "+s)
	}
	return m, nil
}

func (m Method) IsValid() bool {
	switch m {
	case MethodBiometric, MethodPasscode, MethodPassword:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// RequiresDevice reports whether the method must run on a registered device.
func (m Method) RequiresDevice() bool {
	return m == MethodBiometric || m == MethodPasscode
}

// Confidence grades how strongly an outcome binds the signer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SignerContext is what the engine knows about the signing attempt.
type SignerContext struct {
	AgreementID id.AgreementID
	SignerID    id.SignerID
	IdentityRef id.IdentityRef
	ContentHash string
	Method      Method
}

// Proof is the signer-supplied evidence. Device methods carry a platform
// assertion reference and a device signature over Challenge; password
// confirmation carries the password. Raw biometric material is never part of
// a proof.
type Proof struct {
	DeviceID     string    `json:"device_id,omitempty"`
	AssertionRef string    `json:"assertion_ref,omitempty"`
	AssertedAt   time.Time `json:"asserted_at,omitzero"`
	Signature    []byte    `json:"signature,omitempty"`
	Password     string    `json:"password,omitempty"`
}

// Outcome is the verification result the engine trusts.
type Outcome struct {
	OK           bool
	Method       Method
	AssertionRef string
	Confidence   Confidence
	DeviceID     string
	VerifiedAt   time.Time
}

// Identity is the provider's view of a signer.
type Identity struct {
	Ref          id.IdentityRef
	Handle       string
	PasswordHash []byte
	Devices      []Device
}

// Device is a registered signing device. Only its public key and sensor
// capabilities are known to the engine.
type Device struct {
	ID           string
	PublicKey    ed25519.PublicKey
	HasBiometric bool
	HasPasscode  bool
	RevokedAt    *time.Time
}

// Device returns the registered, unrevoked device with the given id.
func (i *Identity) Device(deviceID string) (Device, bool) {
	for _, d := range i.Devices {
		if d.ID == deviceID && d.RevokedAt == nil {
			return d, true
		}
	}
	return Device{}, false
}

// Supports reports whether the device has the sensor a method needs.
func (d Device) Supports(m Method) bool {
	switch m {
	case MethodBiometric:
		return d.HasBiometric
	case MethodPasscode:
		return d.HasPasscode
	}
	return false
}
