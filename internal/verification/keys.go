package verification

import (
	"regexp"
	"strings"
)

// KeyResolver derives the verification key for a vote. It is one of
// NoKey, RegexKey, DynamicKey or RequiredKey.
type KeyResolver interface {
	resolve(voteURL, explicitKey string) (string, bool)
}

// NoKey never yields a key, so every vote is admitted without a check
type NoKey struct{}

// RegexKey extracts the key from the site's vote URL. The URL is matched
// without its scheme and leading "www.".
type RegexKey struct {
	Pattern *regexp.Regexp
	Index   int
}

// DynamicKey derives the key from the vote URL with an arbitrary function
type DynamicKey struct {
	Func func(voteURL string) (string, bool)
}

// RequiredKey takes the key configured on the site, labelled Label in admin forms
type RequiredKey struct {
	Label string
}

func (NoKey) resolve(string, string) (string, bool) {
	return "", false
}

func (k RegexKey) resolve(voteURL, _ string) (string, bool) {
	if k.Pattern == nil {
		return "", false
	}
	m := k.Pattern.FindStringSubmatch(trimVoteURL(voteURL))
	if m == nil || k.Index < 0 || k.Index >= len(m) || m[k.Index] == "" {
		return "", false
	}
	return m[k.Index], true
}

func (k DynamicKey) resolve(voteURL, _ string) (string, bool) {
	if k.Func == nil {
		return "", false
	}
	key, ok := k.Func(voteURL)
	return key, ok && key != ""
}

func (RequiredKey) resolve(_, explicitKey string) (string, bool) {
	explicitKey = strings.TrimSpace(explicitKey)
	return explicitKey, explicitKey != ""
}

func trimVoteURL(voteURL string) string {
	voteURL = strings.TrimPrefix(voteURL, "https://")
	voteURL = strings.TrimPrefix(voteURL, "http://")
	return strings.TrimPrefix(voteURL, "www.")
}
