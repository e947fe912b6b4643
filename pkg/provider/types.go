package provider

// TokenResponse is the provider's answer to both the authenticate and
// renew exchanges. RenewalCredential may be empty on renew when the
// provider does not rotate it; callers keep the one they already hold.
type TokenResponse struct {
	AccessCredential   string `json:"access_credential"`
	IdentityCredential string `json:"identity_credential"`
	RenewalCredential  string `json:"renewal_credential,omitempty"`
	ExpiresIn          int    `json:"expires_in"`
}

type authenticateRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	ClientID   string `json:"client_id"`
	SecretHash string `json:"secret_hash"`
}

type renewRequest struct {
	RenewalCredential string `json:"renewal_credential"`
	Username          string `json:"username"`
	ClientID          string `json:"client_id"`
	SecretHash        string `json:"secret_hash"`
}
