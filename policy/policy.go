// Package policy holds the configurable behaviors of the authority engine.
// The thresholds here are deliberately not hard-coded invariants: the
// allowance closure rule and the encroachment status override are business
// policy, confirmed per deployment, not statute.
package policy

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy configures engine behaviors that vary by deployment.
type Policy struct {
	// AllowanceAutoClose closes a work allowance when a reduction leaves its
	// remaining authority exactly equal to the obligated amount. When false
	// the allowance stays Reduced and must be closed explicitly.
	AllowanceAutoClose bool `yaml:"allowance_auto_close"`

	// AllowStatusOverride permits the free-form status override on document
	// types whose spec declares AllowOverride (encroachment tasks). Every
	// override still appends an audit event.
	AllowStatusOverride bool `yaml:"allow_status_override"`
}

// Default returns the engine's default policy.
func Default() Policy {
	return Policy{
		AllowanceAutoClose:  true,
		AllowStatusOverride: true,
	}
}

// Load reads a YAML policy document. Fields not present keep their
// zero values, so callers usually overlay onto Default().
func Load(r io.Reader) (Policy, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return p, nil
		}
		return Policy{}, fmt.Errorf("policy: decode: %w", err)
	}
	return p, nil
}

// LoadFile reads a YAML policy file from disk.
func LoadFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: open %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}
