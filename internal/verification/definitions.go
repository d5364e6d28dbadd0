package verification

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
)

// Definition is the declarative form of a Verifier, as stored in a verifiers file
type Definition struct {
	Domain string          `json:"domain"`
	APIURL string          `json:"api_url,omitempty"`
	Key    KeyDefinition   `json:"key"`
	Check  CheckDefinition `json:"check"`
}

// KeyDefinition selects a KeyResolver: "none", "regex" or "required"
type KeyDefinition struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern,omitempty"`
	Index   int    `json:"index,omitempty"`
	Label   string `json:"label,omitempty"`
}

// CheckDefinition selects a Check: "body", "body_not", "json" or "pingback"
type CheckDefinition struct {
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Path     string `json:"path,omitempty"`
	Expected any    `json:"expected,omitempty"`
	IPParam  string `json:"ip_param,omitempty"`
	KeyParam string `json:"key_param,omitempty"`
}

// LoadDefinitions decodes a JSON array of definitions into verifiers
func LoadDefinitions(r io.Reader) ([]*Verifier, error) {
	var defs []Definition
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode verifier definitions: %w", err)
	}

	verifiers := make([]*Verifier, 0, len(defs))
	for i, def := range defs {
		v, err := def.Build()
		if err != nil {
			return nil, fmt.Errorf("verifier %d (%s): %w", i, def.Domain, err)
		}
		verifiers = append(verifiers, v)
	}
	return verifiers, nil
}

// LoadDefinitionsFile reads definitions from path
func LoadDefinitionsFile(path string) ([]*Verifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDefinitions(f)
}

// Build turns the definition into a Verifier
func (d Definition) Build() (*Verifier, error) {
	if d.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	v := For(d.Domain).WithAPIURL(d.APIURL)

	switch d.Key.Type {
	case "", "none":
		v.Key = NoKey{}
	case "regex":
		re, err := regexp.Compile(d.Key.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid key pattern: %w", err)
		}
		index := d.Key.Index
		if index == 0 {
			index = 1
		}
		if index > re.NumSubexp() {
			return nil, fmt.Errorf("key pattern has no group %d", index)
		}
		v.Key = RegexKey{Pattern: re, Index: index}
	case "required":
		label := d.Key.Label
		if label == "" {
			label = "key"
		}
		v.Key = RequiredKey{Label: label}
	default:
		return nil, fmt.Errorf("unknown key type %q", d.Key.Type)
	}

	switch d.Check.Type {
	case "body":
		v.Check = ExactBody{Value: d.Check.Value}
	case "body_not":
		v.Check = BodyMismatch{Value: d.Check.Value}
	case "json":
		if d.Check.Path == "" {
			return nil, fmt.Errorf("json check requires a path")
		}
		v.Check = JSONField{Path: d.Check.Path, Expected: d.Check.Expected}
	case "pingback":
		if d.Check.KeyParam != "" && !v.RequiresKey() {
			return nil, fmt.Errorf("pingback key_param requires a required key")
		}
		v.Check = Pingback{IPParam: d.Check.IPParam, KeyParam: d.Check.KeyParam}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown check type %q", d.Check.Type)
	}

	if _, noKey := v.Key.(NoKey); !noKey && v.APIURL == "" {
		return nil, fmt.Errorf("%s check requires api_url", d.Check.Type)
	}
	return v, nil
}
