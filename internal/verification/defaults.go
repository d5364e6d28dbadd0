package verification

import (
	"bytes"
	_ "embed"
)

//go:embed verifiers.json
var defaultDefinitions []byte

// Defaults returns the built-in verifiers, used when no verifiers file is configured
func Defaults() ([]*Verifier, error) {
	return LoadDefinitions(bytes.NewReader(defaultDefinitions))
}
