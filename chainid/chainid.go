// Package chainid implements CAIP-2 chain identifiers and the pattern
// matching used to route a concrete chain to a registered scheme handler.
//
// x402.Network (types.go) remains the wire-level string type every payload
// and requirement carries; ChainId is its parsed, validated form and
// ChainIdPattern generalizes x402.Network.Match beyond simple wildcards to
// the exact / wildcard / set forms spec.md §3/§4.B requires.
package chainid

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChainId is a parsed CAIP-2 chain identifier: namespace:reference.
type ChainId struct {
	Namespace string
	Reference string
}

// Parse splits s into a ChainId, validating the namespace:reference shape.
func Parse(s string) (ChainId, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ChainId{}, fmt.Errorf("invalid CAIP-2 chain id: %s", s)
	}
	return ChainId{Namespace: parts[0], Reference: parts[1]}, nil
}

// String renders the chain id back to its CAIP-2 wire form.
func (c ChainId) String() string {
	return c.Namespace + ":" + c.Reference
}

// MarshalJSON implements json.Marshaler, round-tripping through String.
func (c ChainId) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler, round-tripping through Parse.
func (c *ChainId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// patternKind distinguishes the three forms a ChainIdPattern's reference can take.
type patternKind int

const (
	kindExact patternKind = iota
	kindWildcard
	kindSet
)

// ChainIdPattern matches one or more ChainIds against a namespace and a
// reference selector: an exact reference ("eip155:8453"), a wildcard
// ("eip155:*"), or a set ("eip155:{8453,84532}").
type ChainIdPattern struct {
	namespace string
	kind      patternKind
	reference string          // kindExact
	set       map[string]bool // kindSet
}

// ParsePattern parses a pattern string into a ChainIdPattern.
func ParsePattern(s string) (ChainIdPattern, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ChainIdPattern{}, fmt.Errorf("invalid chain id pattern: %s", s)
	}
	namespace, ref := parts[0], parts[1]

	switch {
	case ref == "*":
		return ChainIdPattern{namespace: namespace, kind: kindWildcard}, nil
	case strings.HasPrefix(ref, "{") && strings.HasSuffix(ref, "}"):
		inner := strings.TrimSuffix(strings.TrimPrefix(ref, "{"), "}")
		if inner == "" {
			return ChainIdPattern{}, fmt.Errorf("empty chain id set: %s", s)
		}
		set := make(map[string]bool)
		for _, r := range strings.Split(inner, ",") {
			r = strings.TrimSpace(r)
			if r == "" {
				return ChainIdPattern{}, fmt.Errorf("empty member in chain id set: %s", s)
			}
			set[r] = true
		}
		return ChainIdPattern{namespace: namespace, kind: kindSet, set: set}, nil
	default:
		return ChainIdPattern{namespace: namespace, kind: kindExact, reference: ref}, nil
	}
}

// MustParsePattern is ParsePattern, panicking on error; for package-level
// pattern tables built from literal strings.
func MustParsePattern(s string) ChainIdPattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches reports whether id falls under p.
func (p ChainIdPattern) Matches(id ChainId) bool {
	if id.Namespace != p.namespace {
		return false
	}
	switch p.kind {
	case kindWildcard:
		return true
	case kindSet:
		return p.set[id.Reference]
	default:
		return id.Reference == p.reference
	}
}

// String renders the pattern back to its wire form.
func (p ChainIdPattern) String() string {
	switch p.kind {
	case kindWildcard:
		return p.namespace + ":*"
	case kindSet:
		members := make([]string, 0, len(p.set))
		for r := range p.set {
			members = append(members, r)
		}
		return p.namespace + ":{" + strings.Join(members, ",") + "}"
	default:
		return p.namespace + ":" + p.reference
	}
}
