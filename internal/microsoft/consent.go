package microsoft

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultLoginHost is the Microsoft identity platform host.
const DefaultLoginHost = "login.microsoftonline.com"

// ErrInvalidConsentURL indicates an admin-consent URL that cannot be handed
// to an administrator.
var ErrInvalidConsentURL = errors.New("microsoft: invalid admin consent URL")

// BuildConsentURL constructs the admin-consent URL for an app in a tenant.
// redirectURI is optional.
func BuildConsentURL(directoryTenantID, clientID, redirectURI string) string {
	params := url.Values{
		"client_id": {clientID},
	}
	if redirectURI != "" {
		params.Set("redirect_uri", redirectURI)
	}

	u := url.URL{
		Scheme:   "https",
		Host:     DefaultLoginHost,
		Path:     "/" + directoryTenantID + "/adminconsent",
		RawQuery: params.Encode(),
	}
	return u.String()
}

// ParseConsentURL checks that raw is an absolute https URL and returns it
// normalised. The host is not restricted so sovereign clouds keep working.
func ParseConsentURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidConsentURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidConsentURL
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", ErrInvalidConsentURL
	}

	return u.String(), nil
}

// ConsentClientID returns the client_id carried by a consent URL, if any.
func ConsentClientID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("client_id")
}
