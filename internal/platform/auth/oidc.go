package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// discoveryTimeout bounds the one-shot discovery fetch at boot.
const discoveryTimeout = 10 * time.Second

// discoveryDocument is the subset of the OpenID Connect discovery response
// this service consumes. Token verification only needs the key set URL;
// everything else (authorization endpoints, scopes) belongs to the
// identity provider's own clients.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// DiscoverJWKSURL resolves the issuer's JWKS endpoint from its
// .well-known/openid-configuration document. Works against Keycloak,
// Auth0, Okta, Azure AD, and Google.
func DiscoverJWKSURL(issuerURL string) (string, error) {
	wellKnown := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	client := &http.Client{Timeout: discoveryTimeout}
	resp, err := client.Get(wellKnown)
	if err != nil {
		return "", fmt.Errorf("fetch OIDC discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode OIDC discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("OIDC discovery document missing jwks_uri")
	}

	return doc.JWKSURI, nil
}
