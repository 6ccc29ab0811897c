package clients

import (
	"net/http"

	"golang.org/x/oauth2"
)

// newBearerTransport wraps base so every request carries
// "Authorization: Bearer <token>". The profile token is static; expiry is
// checked against the profile, not refreshed here.
func newBearerTransport(token string, base http.RoundTripper) http.RoundTripper {
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}),
		Base: base,
	}
}
