package protocol

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
)

// Profile holds the credentials needed to reach a sharing server
type Profile struct {
	ShareCredentialsVersion int    `json:"shareCredentialsVersion"`
	Endpoint                string `json:"endpoint"`
	BearerToken             string `json:"bearerToken"`
	ExpirationTime          string `json:"expirationTime,omitempty"`
}

// profileFile distinguishes a missing version from an explicit zero
type profileFile struct {
	ShareCredentialsVersion *int   `json:"shareCredentialsVersion"`
	Endpoint                string `json:"endpoint"`
	BearerToken             string `json:"bearerToken"`
	ExpirationTime          string `json:"expirationTime"`
}

// NewProfile creates a profile. The endpoint loses one trailing slash.
func NewProfile(version int, endpoint, bearerToken, expirationTime string) (*Profile, error) {
	p := &Profile{
		ShareCredentialsVersion: version,
		Endpoint:                NormalizeEndpoint(endpoint),
		BearerToken:             bearerToken,
		ExpirationTime:          expirationTime,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseProfile decodes a credential file
func ParseProfile(data []byte) (*Profile, error) {
	var pf profileFile
	if err := decode(data, "profile", &pf); err != nil {
		return nil, err
	}
	if pf.ShareCredentialsVersion == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "profile is missing 'shareCredentialsVersion'")
	}
	return NewProfile(*pf.ShareCredentialsVersion, pf.Endpoint, pf.BearerToken, pf.ExpirationTime)
}

// ReadProfile loads a credential file from disk
func ReadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: profile path is supplied by the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read profile").
			WithDetail("path", path)
	}
	return ParseProfile(data)
}

// NormalizeEndpoint strips exactly one trailing path separator
func NormalizeEndpoint(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/")
}

// Validate checks the version and required fields
func (p *Profile) Validate() error {
	if p.ShareCredentialsVersion > CurrentShareCredentialsVersion {
		return errors.Newf(errors.ErrorTypeUnsupportedVersion,
			"'shareCredentialsVersion' in the profile is %d which is too new, the current release supports version %d and below",
			p.ShareCredentialsVersion, CurrentShareCredentialsVersion).
			WithDetail("share_credentials_version", p.ShareCredentialsVersion)
	}
	if p.Endpoint == "" {
		return errors.New(errors.ErrorTypeValidation, "profile is missing 'endpoint'")
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(errors.ErrorTypeValidation, "profile 'endpoint' is not an absolute URL").
			WithDetail("endpoint", p.Endpoint)
	}
	if p.BearerToken == "" {
		return errors.New(errors.ErrorTypeValidation, "profile is missing 'bearerToken'")
	}
	return nil
}

// expirationLayouts are tried in order; values without a zone are UTC
var expirationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Expiration parses ExpirationTime. ok is false when no expiration is set.
// The value is informational, so callers should warn on err rather than
// reject the profile.
func (p *Profile) Expiration() (t time.Time, ok bool, err error) {
	if p.ExpirationTime == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range expirationLayouts {
		if t, err = time.ParseInLocation(layout, p.ExpirationTime, time.UTC); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, errors.Wrap(err, errors.ErrorTypeValidation, "profile 'expirationTime' is not ISO-8601").
		WithDetail("expiration_time", p.ExpirationTime)
}

// IsExpired reports whether the token has expired at now
func (p *Profile) IsExpired(now time.Time) bool {
	t, ok, err := p.Expiration()
	if err != nil || !ok {
		return false
	}
	return !now.Before(t)
}

// String renders the profile without the bearer token
func (p *Profile) String() string {
	return fmt.Sprintf("Profile(shareCredentialsVersion=%d, endpoint=%s, bearerToken=<redacted>, expirationTime=%s)",
		p.ShareCredentialsVersion, p.Endpoint, p.ExpirationTime)
}

// MarshalProfile encodes the profile in credential-file form
func MarshalProfile(p *Profile) ([]byte, error) {
	return json.Marshal(p)
}
