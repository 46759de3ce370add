package framing

import (
	"fmt"
	"strings"
)

// Policy selects what happens to an undelimited tail at end-of-stream.
type Policy int

const (
	// PolicyEmit flushes a non-empty trailing partial as the final record.
	PolicyEmit Policy = iota
	// PolicyRequireDelimiter only emits delimiter-terminated records; a
	// trailing partial is discarded and counted by Splitter.Discarded.
	PolicyRequireDelimiter
)

const (
	policyEmitName    = "emit"
	policyRequireName = "require-delimiter"
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyEmit:
		return policyEmitName
	case PolicyRequireDelimiter:
		return policyRequireName
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "emit" or "require-delimiter". The empty string selects PolicyEmit.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", policyEmitName:
		return PolicyEmit, nil
	case policyRequireName, "require_delimiter":
		return PolicyRequireDelimiter, nil
	default:
		return PolicyEmit, fmt.Errorf("unknown trailing partial policy %q (want %s or %s)", s, policyEmitName, policyRequireName)
	}
}
