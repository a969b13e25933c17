// File: internal/identity/model.go
package identity

import "time"

// Identity is the authentication provider's record of a signed-in user.
// It is owned by the provider and read-only to the rest of the system.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Token carries the provider session credential returned alongside an
// Identity on sign-in and sign-up. Issuance and verification stay inside
// the provider; this is an opaque pass-through for presentation clients.
type Token struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OAuthProvider represents an OAuth provider type.
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderApple  OAuthProvider = "apple"
)

// providerID returns the identity-toolkit provider identifier.
func (p OAuthProvider) providerID() string {
	switch p {
	case ProviderGoogle:
		return "google.com"
	case ProviderApple:
		return "apple.com"
	}
	return string(p)
}

// Valid reports whether p names a supported provider.
func (p OAuthProvider) Valid() bool {
	return p == ProviderGoogle || p == ProviderApple
}
