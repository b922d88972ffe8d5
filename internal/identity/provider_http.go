package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

// HTTPProvider resolves identities against a remote identity service.
//
//	GET {base}/identities/{ref} ->
//	{"ref": "...", "handle": "...", "password_hash": "$2a$...",
//	 "devices": [{"id": "...", "public_key": "<base64url>", "biometric": true,
//	              "passcode": true, "revoked_at": null}]}
type HTTPProvider struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
}

func NewHTTPProvider(baseURL, token string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Token:   token,
	}
}

type remoteDevice struct {
	ID        string     `json:"id"`
	PublicKey string     `json:"public_key"`
	Biometric bool       `json:"biometric"`
	Passcode  bool       `json:"passcode"`
	RevokedAt *time.Time `json:"revoked_at"`
}

type remoteIdentity struct {
	Ref          string         `json:"ref"`
	Handle       string         `json:"handle"`
	PasswordHash string         `json:"password_hash"`
	Devices      []remoteDevice `json:"devices"`
}

func (c *HTTPProvider) Resolve(ctx context.Context, ref id.IdentityRef) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/identities/"+url.PathEscape(ref.String()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("identity %s: %w", ref, sentinel.ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("identity provider returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}

	var out remoteIdentity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}

	ident := &Identity{
		Ref:    ref,
		Handle: out.Handle,
	}
	if out.PasswordHash != "" {
		ident.PasswordHash = []byte(out.PasswordHash)
	}
	for _, d := range out.Devices {
		pk, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(d.PublicKey, "="))
		if err != nil || len(pk) != ed25519.PublicKeySize {
			// Unusable keys are skipped; the signer sees method_unavailable.
			continue
		}
		ident.Devices = append(ident.Devices, Device{
			ID:           d.ID,
			PublicKey:    ed25519.PublicKey(pk),
			HasBiometric: d.Biometric,
			HasPasscode:  d.Passcode,
			RevokedAt:    d.RevokedAt,
		})
	}
	return ident, nil
}
