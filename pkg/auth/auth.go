// Package auth applies credentials to requests sent to a self-hosted update service.
// The public Chrome Web Store endpoint needs none of this.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/glorpus-work/crxget/pkg/errors"
)

// Authenticator adds credentials to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth sends a secret in a custom header, e.g. X-Api-Key.
type HeaderAuth struct {
	Name  string
	Value string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	NoneType   Type = ""
	BasicType  Type = "basic"
	HeaderType Type = "header"
	BearerType Type = "bearer"
)

// New builds the authenticator for typ. NoneType yields a nil Authenticator.
// secret is the password, token or header value depending on typ.
func New(typ Type, username, secret, header string) (Authenticator, error) {
	switch Type(strings.ToLower(string(typ))) {
	case NoneType, "none":
		return nil, nil
	case BasicType:
		return BasicAuth{Username: username, Password: secret}, nil
	case BearerType:
		return BearerAuth{Token: secret}, nil
	case HeaderType:
		if strings.TrimSpace(header) == "" {
			return nil, fmt.Errorf("%w: header authentication needs a header name", errors.ErrAuthType)
		}
		return HeaderAuth{Name: header, Value: secret}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrAuthType, typ)
	}
}

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicType.
func (b BasicAuth) Type() Type { return BasicType }

// Apply sets the configured header.
func (h HeaderAuth) Apply(req *http.Request) error {
	req.Header.Set(h.Name, h.Value)
	return nil
}

// Type returns HeaderType.
func (h HeaderAuth) Type() Type { return HeaderType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerType.
func (b BearerAuth) Type() Type { return BearerType }
