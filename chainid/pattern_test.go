package chainid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePatternExact(t *testing.T) {
	p, err := ParsePattern("eip155:8453")
	require.NoError(t, err)
	require.True(t, p.Matches(ChainId{Namespace: "eip155", Reference: "8453"}))
	require.False(t, p.Matches(ChainId{Namespace: "eip155", Reference: "1"}))
	require.Equal(t, "eip155:8453", p.String())
}

func TestParsePatternWildcard(t *testing.T) {
	p, err := ParsePattern("eip155:*")
	require.NoError(t, err)
	require.True(t, p.Matches(ChainId{Namespace: "eip155", Reference: "8453"}))
	require.True(t, p.Matches(ChainId{Namespace: "eip155", Reference: "1"}))
	require.False(t, p.Matches(ChainId{Namespace: "solana", Reference: "mainnet"}))
}

func TestParsePatternSet(t *testing.T) {
	p, err := ParsePattern("eip155:{8453,84532}")
	require.NoError(t, err)
	require.True(t, p.Matches(ChainId{Namespace: "eip155", Reference: "8453"}))
	require.True(t, p.Matches(ChainId{Namespace: "eip155", Reference: "84532"}))
	require.False(t, p.Matches(ChainId{Namespace: "eip155", Reference: "1"}))
}

func TestParsePatternRejectsEmptySet(t *testing.T) {
	_, err := ParsePattern("eip155:{}")
	require.Error(t, err)
}

func TestParsePatternRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "eip155", ":*"} {
		_, err := ParsePattern(s)
		require.Error(t, err, "expected error for %q", s)
	}
}

// Reflexivity: every concrete ChainId's own exact-form string always
// parses to a pattern matching itself.
func TestPatternReflexivity(t *testing.T) {
	ids := []ChainId{
		{Namespace: "eip155", Reference: "8453"},
		{Namespace: "eip155", Reference: "1"},
		{Namespace: "solana", Reference: "mainnet"},
	}
	for _, id := range ids {
		p, err := ParsePattern(id.String())
		require.NoError(t, err)
		require.True(t, p.Matches(id), "pattern %q should match its own id", p.String())
	}
}

func TestMustParsePatternPanicsOnInvalid(t *testing.T) {
	require.Panics(t, func() {
		MustParsePattern("not-a-pattern")
	})
}
