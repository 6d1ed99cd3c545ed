package extension

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/glorpus-work/crxget/pkg/platform"
	"github.com/hashicorp/go-version"
)

const (
	// DefaultBaseURL is the Chrome Web Store update endpoint.
	DefaultBaseURL = "https://clients2.google.com/service/update2/crx"
	// DefaultProdVersion is the browser version reported to the update service.
	DefaultProdVersion = "120.0.0.0"
)

// Resolver builds download URLs for extension identifiers.
// All inputs are fixed at construction, so Resolve performs no I/O.
type Resolver struct {
	base        *url.URL
	platform    platform.Platform
	prodVersion *version.Version
}

// NewResolver creates a Resolver for the given endpoint, host platform and browser version.
// Empty baseURL and prodVersion fall back to the defaults.
func NewResolver(baseURL string, p platform.Platform, prodVersion string) (*Resolver, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if prodVersion == "" {
		prodVersion = DefaultProdVersion
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	v, err := version.NewVersion(prodVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid browser version %q: %w", prodVersion, err)
	}

	return &Resolver{base: base, platform: p, prodVersion: v}, nil
}

// Resolve returns the canonical download URL for id.
func (r *Resolver) Resolve(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	params := [][2]string{
		{"response", "redirect"},
		{"os", r.platform.OS},
		{"arch", r.platform.Arch},
		{"os_arch", r.platform.OSArch()},
		{"nacl_arch", r.platform.NaClArch},
		{"prod", "chromecrx"},
		{"prodchannel", "unknown"},
		{"prodversion", r.prodVersion.Original()},
		{"acceptformat", "crx2,crx3"},
		{"x", "id=" + id + "&uc"},
	}

	var q strings.Builder
	q.WriteString(r.base.RawQuery)
	for _, kv := range params {
		if q.Len() > 0 {
			q.WriteByte('&')
		}
		q.WriteString(kv[0])
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(kv[1]))
	}

	u := *r.base
	u.RawQuery = q.String()
	return u.String(), nil
}
