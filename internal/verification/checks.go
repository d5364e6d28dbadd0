package verification

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abrezinsky/voterewards/internal/models"
)

// Response is the part of a verification API response checks look at
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON returns the body parsed as JSON
func (r *Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// Check decides whether a vote happened. It is one of ExactBody,
// BodyMismatch, JSONField, Callback or Pingback.
type Check interface {
	check()
}

// ExactBody matches when the body equals Value
type ExactBody struct {
	Value string
}

// BodyMismatch matches when the body differs from Value
type BodyMismatch struct {
	Value string
}

// JSONField matches when the value at Path loosely equals the expected value.
// ExpectedFunc, when set, computes the expected value from the actual value and the whole document.
type JSONField struct {
	Path         string
	Expected     any
	ExpectedFunc func(actual, doc gjson.Result) any
}

// Callback matches when Func returns true. Func is called once per candidate
// IP; resp is nil when the verifier has no API URL.
type Callback struct {
	Func func(resp *Response, ip string, user models.User) bool
}

// Pingback matches when the external site called back for the voter's IP.
// Extract reads the voter IP from the callback request; when nil the IPParam
// query or form parameter is used ("ip" by default). When KeyParam is set the
// callback must carry the site key in that parameter.
type Pingback struct {
	IPParam  string
	KeyParam string
	Extract  func(r *http.Request) string
}

func (ExactBody) check()    {}
func (BodyMismatch) check() {}
func (JSONField) check()    {}
func (Callback) check()     {}
func (Pingback) check()     {}

// evaluate runs an HTTP-backed check against a response
func evaluate(c Check, resp *Response, ip string, user models.User) bool {
	switch c := c.(type) {
	case ExactBody:
		return string(resp.Body) == c.Value
	case BodyMismatch:
		return string(resp.Body) != c.Value
	case JSONField:
		doc := resp.JSON()
		actual := doc.Get(c.Path)
		if !actual.Exists() || actual.Type == gjson.Null {
			return false
		}
		expected := c.Expected
		if c.ExpectedFunc != nil {
			expected = c.ExpectedFunc(actual, doc)
		}
		return looseEqual(actual, expected)
	case Callback:
		return c.Func != nil && c.Func(resp, ip, user)
	default:
		return false
	}
}

func (p Pingback) voterIP(r *http.Request) string {
	if p.Extract != nil {
		return strings.TrimSpace(p.Extract(r))
	}
	param := p.IPParam
	if param == "" {
		param = "ip"
	}
	return requestParam(r, param)
}

// keyAccepted reports whether the callback carries one of keys. Callbacks
// always pass when no KeyParam is configured.
func (p Pingback) keyAccepted(r *http.Request, keys []string) bool {
	if p.KeyParam == "" {
		return true
	}
	got := requestParam(r, p.KeyParam)
	if got == "" {
		return false
	}
	for _, key := range keys {
		if key != "" && subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func requestParam(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r.FormValue(name))
}

// looseEqual compares a JSON value with a Go value the way list sites expect:
// "1", 1 and true all count as a positive answer.
func looseEqual(actual gjson.Result, expected any) bool {
	switch want := expected.(type) {
	case nil:
		return false
	case bool:
		return truthy(actual) == want
	case string:
		if actual.Type == gjson.String && actual.Str == want {
			return true
		}
		wantNum, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		if err != nil {
			return actual.String() == want
		}
		gotNum, ok := numeric(actual)
		return ok && gotNum == wantNum
	case int:
		return numberEqual(actual, float64(want))
	case int64:
		return numberEqual(actual, float64(want))
	case float64:
		return numberEqual(actual, want)
	case gjson.Result:
		return looseEqual(actual, want.Value())
	default:
		return false
	}
}

func numberEqual(actual gjson.Result, want float64) bool {
	switch actual.Type {
	case gjson.True:
		return want != 0
	case gjson.False:
		return want == 0
	}
	got, ok := numeric(actual)
	return ok && got == want
}

func numeric(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != "" && r.Str != "0"
	case gjson.JSON:
		raw := strings.TrimSpace(r.Raw)
		return raw != "[]" && raw != "{}"
	}
	return false
}
