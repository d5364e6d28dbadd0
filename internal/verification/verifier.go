// Package verification checks with external list sites that a claimed vote happened.
package verification

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/abrezinsky/voterewards/internal/models"
)

var (
	// ErrNoPingback is returned when a pingback arrives for a verifier without pingback support
	ErrNoPingback = errors.New("verifier does not accept pingbacks")
	// ErrMissingIP is returned when a pingback request carries no voter IP
	ErrMissingIP = errors.New("pingback request has no voter ip")
	// ErrInvalidPingbackKey is returned when a pingback does not carry a known site key
	ErrInvalidPingbackKey = errors.New("pingback request has an invalid key")
)

// Verifier describes how one list site is verified. APIURL may contain the
// {server}, {ip}, {id} and {name} placeholders.
type Verifier struct {
	Domain string
	APIURL string
	Key    KeyResolver
	Check  Check
}

// For starts a verifier for domain (without scheme or "www.")
func For(domain string) *Verifier {
	return &Verifier{Domain: normalizeHost(domain), Key: NoKey{}}
}

// WithAPIURL sets the templated verification URL
func (v *Verifier) WithAPIURL(apiURL string) *Verifier {
	v.APIURL = apiURL
	return v
}

// RetrieveKeyByRegex extracts the key from the vote URL with capture group index
func (v *Verifier) RetrieveKeyByRegex(pattern string, index int) *Verifier {
	v.Key = RegexKey{Pattern: regexp.MustCompile(pattern), Index: index}
	return v
}

// RetrieveKeyDynamically derives the key from the vote URL with fn
func (v *Verifier) RetrieveKeyDynamically(fn func(voteURL string) (string, bool)) *Verifier {
	v.Key = DynamicKey{Func: fn}
	return v
}

// RequireKey makes the site's configured verification key mandatory
func (v *Verifier) RequireKey(label string) *Verifier {
	v.Key = RequiredKey{Label: label}
	return v
}

// VerifyByJSON matches when the JSON value at path loosely equals expected
func (v *Verifier) VerifyByJSON(path string, expected any) *Verifier {
	v.Check = JSONField{Path: path, Expected: expected}
	return v
}

// VerifyByJSONFunc matches when the JSON value at path loosely equals fn's result
func (v *Verifier) VerifyByJSONFunc(path string, fn func(actual, doc gjson.Result) any) *Verifier {
	v.Check = JSONField{Path: path, ExpectedFunc: fn}
	return v
}

// VerifyByValue matches when the response body equals value
func (v *Verifier) VerifyByValue(value string) *Verifier {
	v.Check = ExactBody{Value: value}
	return v
}

// VerifyByDifferentValue matches when the response body differs from value
func (v *Verifier) VerifyByDifferentValue(value string) *Verifier {
	v.Check = BodyMismatch{Value: value}
	return v
}

// VerifyByCallback matches when fn returns true. Without an API URL fn is
// called directly with a nil response.
func (v *Verifier) VerifyByCallback(fn func(resp *Response, ip string, user models.User) bool) *Verifier {
	v.Check = Callback{Func: fn}
	return v
}

// VerifyByPingback waits for the site to call back. extract may be nil to read the "ip" parameter.
func (v *Verifier) VerifyByPingback(extract func(r *http.Request) string) *Verifier {
	v.Check = Pingback{Extract: extract}
	return v
}

// WithPingbackKey makes pingbacks carry the site key in param. Call it after VerifyByPingback.
func (v *Verifier) WithPingbackKey(param string) *Verifier {
	if pb, ok := v.Check.(Pingback); ok {
		pb.KeyParam = param
		v.Check = pb
	}
	return v
}

// PingbackKeyParam returns the parameter carrying the site key of pingbacks, if any
func (v *Verifier) PingbackKeyParam() string {
	if pb, ok := v.Check.(Pingback); ok {
		return pb.KeyParam
	}
	return ""
}

// Validate reports verifiers that could never check a vote. Verifiers
// without a key are always valid since their votes are admitted unchecked.
func (v *Verifier) Validate() error {
	if v.Domain == "" {
		return fmt.Errorf("verifier has no domain")
	}
	if _, noKey := v.Key.(NoKey); noKey || v.Key == nil {
		return nil
	}
	switch v.Check.(type) {
	case nil:
		return fmt.Errorf("verifier %s has no check", v.Domain)
	case Callback, Pingback:
		return nil
	}
	if v.APIURL == "" {
		return fmt.Errorf("verifier %s: %T check requires an api url", v.Domain, v.Check)
	}
	return nil
}

// HasPingback reports whether the site confirms votes by calling back
func (v *Verifier) HasPingback() bool {
	_, ok := v.Check.(Pingback)
	return ok
}

// RequiresKey reports whether the site needs a verification key configured by an admin
func (v *Verifier) RequiresKey() bool {
	_, ok := v.Key.(RequiredKey)
	return ok
}

// KeyLabel returns the admin label of a required key, or ""
func (v *Verifier) KeyLabel() string {
	if k, ok := v.Key.(RequiredKey); ok {
		return k.Label
	}
	return ""
}

// Registry maps list-site domains to verifiers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]*Verifier
}

// NewRegistry creates a registry holding verifiers
func NewRegistry(verifiers ...*Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]*Verifier)}
	r.Register(verifiers...)
	return r
}

// Register adds or replaces verifiers by domain. It panics on a verifier
// that fails Validate.
func (r *Registry) Register(verifiers ...*Verifier) {
	for _, v := range verifiers {
		if err := v.Validate(); err != nil {
			panic(err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range verifiers {
		r.verifiers[v.Domain] = v
	}
}

// ForDomain returns the verifier registered for domain
func (r *Registry) ForDomain(domain string) (*Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[normalizeHost(domain)]
	return v, ok
}

// ForURL returns the verifier for a site's vote URL. The host matches a
// domain exactly or as a subdomain of it.
func (r *Registry) ForURL(siteURL string) (*Verifier, bool) {
	host := hostOf(siteURL)
	if host == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.verifiers[host]; ok {
		return v, true
	}
	for domain, v := range r.verifiers {
		if strings.HasSuffix(host, "."+domain) {
			return v, true
		}
	}
	return nil, false
}

// Domains lists registered domains in sorted order
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]string, 0, len(r.verifiers))
	for d := range r.verifiers {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

func hostOf(siteURL string) string {
	siteURL = strings.TrimSpace(siteURL)
	if !strings.Contains(siteURL, "://") {
		siteURL = "http://" + siteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
